package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cmlabs-hris/timetable-core/internal/config"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "timetable",
		Short:         "Workforce scheduling core: worker, timesheets and approvals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			})).With(slog.String("version", Version)))
			return nil
		},
	}

	conf := func() *config.Config { return cfg }
	rootCmd.AddCommand(
		newWorkerCommand(conf),
		newTimesheetCommand(conf),
		newApproveCommand(conf),
		newMigrateCommand(conf),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
