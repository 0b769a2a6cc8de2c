package cmd

import (
	"github.com/spf13/cobra"

	"github.com/faultwatch/faultwatch/internal/logger"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(mgr, a.log)

			if err := mgr.Initialize(); err != nil {
				return err
			}
			a.log.Info("database schema is up to date",
				logger.String("type", a.settings.Database.Type),
				logger.Bool("mysql", mgr.IsMySQL()))
			return nil
		},
	}
}
