package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faultwatch/faultwatch/internal/alerting"
	"github.com/faultwatch/faultwatch/internal/errors"
)

func newRunCommand(a *app) *cobra.Command {
	var (
		devices []uint
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate alert rules once",
		Long: `Evaluate the alert rules of the given devices, or of every enabled device
with --all, and print one JSON run summary per device.`,
		Args: cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if all == (len(devices) > 0) {
				return errors.NewStd("exactly one of --device or --all is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(mgr, a.log)

			// No retention worker for a one-shot run.
			settings := *a.settings
			settings.Alert.LogRetentionDays = 0
			engine := alerting.Initialize(mgr.DB(), &settings, nil, a.log)
			defer engine.Stop()

			var summaries []*alerting.RunSummary
			if all {
				summaries, err = engine.RunAll(cmd.Context())
			} else {
				summaries, err = engine.RunDevices(cmd.Context(), devices)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, s := range summaries {
				if encErr := enc.Encode(s); encErr != nil {
					return fmt.Errorf("failed to write summary: %w", encErr)
				}
			}
			if err != nil {
				return err
			}

			var failed int
			for _, s := range summaries {
				failed += len(s.Errors)
			}
			if failed > 0 {
				return fmt.Errorf("%d rule evaluations failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().UintSliceVarP(&devices, "device", "d", nil, "Device id to evaluate (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Evaluate every enabled device")
	return cmd
}
