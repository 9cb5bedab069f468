package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cmlabs-hris/timetable-core/internal/config"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
	"github.com/cmlabs-hris/timetable-core/internal/repository/postgresql"
)

func newMigrateCommand(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			db, err := database.NewPostgreSQLDB(cfg.DatabaseURL(), cfg.Database.MaxConns)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			if err := postgresql.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			slog.Info("Schema is up to date", "database", cfg.Database.Name)
			return nil
		},
	}
}
