// Package cmd implements the faultwatch command line.
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/faultwatch/faultwatch/internal/conf"
	datastore "github.com/faultwatch/faultwatch/internal/datastore/v2"
	"github.com/faultwatch/faultwatch/internal/logger"
	"github.com/faultwatch/faultwatch/internal/telemetry"
)

const telemetryFlushTimeout = 2 * time.Second

// app carries what every subcommand needs once flags are parsed.
type app struct {
	version    string
	configPath string
	settings   *conf.Settings
	log        logger.Logger
}

// NewRootCommand builds the faultwatch command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version}

	root := &cobra.Command{
		Use:   "faultwatch",
		Short: "Alert rule evaluation engine",
		Long: `faultwatch evaluates SQL alert rules against monitored devices and keeps
every (device, rule) alert and its transition log up to date.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			telemetry.Flush(telemetryFlushTimeout)
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to faultwatch.yaml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newRunCommand(a),
		newServeCommand(a),
		newMigrateCommand(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	settings, err := conf.Load(a.configPath)
	if err != nil {
		return err
	}
	a.settings = settings
	a.log = logger.NewZerologLogger(cmd.ErrOrStderr(),
		logger.ParseLevel(settings.Logging.Level),
		&logger.Options{Console: settings.Logging.Console})

	if err := telemetry.Init(settings.Telemetry, a.version); err != nil {
		a.log.Warn("telemetry disabled", logger.Error(err))
	}
	return nil
}

// openDatabase connects with the configured driver.
func (a *app) openDatabase() (datastore.Manager, error) {
	debug := logger.ParseLevel(a.settings.Logging.Level) == logger.LogLevelDebug
	return datastore.Open(a.settings.Database, debug)
}

// Execute runs the command tree and returns the process exit code.
func Execute(version string) int {
	root := NewRootCommand(version)
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

func closeDatabase(mgr datastore.Manager, log logger.Logger) {
	if err := mgr.Close(); err != nil {
		log.Warn("failed to close database", logger.Error(err))
	}
}
