package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cmlabs-hris/timetable-core/internal/config"
	appHTTP "github.com/cmlabs-hris/timetable-core/internal/handler/http"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/cron"
)

func newWorkerCommand(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run cron jobs, the outbox dispatcher and the ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), conf())
		},
	}
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	a, cleanup, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	scheduler := cron.NewScheduler(cfg.Worker.TaskTimeout)
	vacancyJobs := cron.NewVacancyJobs(a.scanner, a.vacancies, a.orgRepo)
	if err := vacancyJobs.RegisterJobs(scheduler, cron.VacancySchedule{
		ScanInterval:        cfg.Schedule.VacancyScanInterval,
		HolidayExchangeSpec: cfg.Schedule.HolidayExchangeCron,
		WorkerExchangeSpec:  cfg.Schedule.WorkerExchangeCron,
	}); err != nil {
		return err
	}
	cron.NewAttendanceJobs(a.orgRepo, a.outbox).RegisterJobs(scheduler)

	dispatcher := a.dispatcher()

	router := appHTTP.NewRouter(appHTTP.RouterConfig{
		Version:        Version,
		Env:            cfg.App.Env,
		AllowedOrigins: cfg.App.CORSAllowedOrigins,
		LogLevel:       cfg.SlogLevel(),
	}, a.db, a.metrics.Registry, appHTTP.NewEventsHandler(a.hub, a.eventRepo))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Ops server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	dispatcher.Start(ctx)
	scheduler.Start()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down worker")
	case err = <-serverErr:
		slog.Error("Ops server failed", "error", err)
	}

	scheduler.Stop()
	dispatcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Error("Ops server shutdown failed", "error", shutdownErr)
	}
	return err
}
