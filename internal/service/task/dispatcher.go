package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/metrics"
)

// Config holds dispatcher configuration
type Config struct {
	Workers      int           // default: 4
	BatchSize    int           // default: 32
	PollInterval time.Duration // default: 2 seconds
	Timeout      time.Duration // default: 5 minutes
	Backoff      time.Duration // default: 30 seconds, multiplied by the attempt number
}

// Dispatcher claims due outbox tasks and runs their handlers on a bounded
// pool of workers.
type Dispatcher struct {
	repo     task.Repository
	cfg      Config
	metrics  *metrics.Metrics
	handlers map[task.Kind]task.Handler
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

func NewDispatcher(repo task.Repository, cfg Config, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 30 * time.Second
	}
	return &Dispatcher{
		repo:     repo,
		cfg:      cfg,
		metrics:  m,
		handlers: make(map[task.Kind]task.Handler),
		now:      time.Now,
	}
}

// SetClock overrides the time source used for claiming and backoff.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

func (d *Dispatcher) Register(kind task.Kind, h task.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Start polls for due tasks until Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.PollInterval)
		defer ticker.Stop()
		for {
			if _, err := d.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Outbox poll failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	slog.Info("Outbox dispatcher started", "workers", d.cfg.Workers, "poll_interval", d.cfg.PollInterval)
}

func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	slog.Info("Outbox dispatcher stopped")
}

// RunOnce claims one batch of due tasks, runs them and returns how many ran.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	// the lease outlives the handler timeout so a live task is not claimed twice
	lease := d.cfg.Timeout + d.cfg.PollInterval
	tasks, err := d.repo.ClaimDue(ctx, d.now(), d.cfg.BatchSize, lease)
	if err != nil {
		return 0, fmt.Errorf("claim due tasks: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for _, t := range tasks {
		g.Go(func() error {
			d.execute(gctx, t)
			return nil
		})
	}
	return len(tasks), g.Wait()
}

// Drain runs tasks until none are due. Tests and the dry-run CLI use it to
// flush after-commit work synchronously.
func (d *Dispatcher) Drain(ctx context.Context) error {
	for {
		n, err := d.RunOnce(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, t task.Task) {
	log := slog.With("task_id", t.ID, "kind", t.Kind, "attempt", t.Attempts)

	d.mu.RLock()
	h, ok := d.handlers[t.Kind]
	d.mu.RUnlock()
	if !ok {
		d.fail(ctx, log, t, task.ErrNoHandler, false, 0)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := h(runCtx, t)
	took := time.Since(start)

	if err == nil {
		if err := d.repo.MarkDone(ctx, t.ID); err != nil {
			log.Error("Failed to mark task done", "error", err)
		}
		d.metrics.Task(string(t.Kind), "done", took)
		log.Debug("Task finished", "duration", took)
		return
	}

	retry := !errors.Is(err, task.ErrInvalidPayload)
	d.fail(ctx, log, t, err, retry, took)
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, t task.Task, cause error, retry bool, took time.Duration) {
	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var retryAt *time.Time
	outcome := "dead"
	if retry && t.Attempts < maxAttempts {
		at := d.now().Add(time.Duration(t.Attempts) * d.cfg.Backoff)
		retryAt = &at
		outcome = "retry"
	}

	if err := d.repo.MarkFailed(ctx, t.ID, cause.Error(), retryAt); err != nil {
		log.Error("Failed to record task failure", "error", err, "cause", cause)
	}
	d.metrics.Task(string(t.Kind), outcome, took)

	if retryAt == nil {
		log.Error("Task failed permanently", "error", cause)
		return
	}
	log.Warn("Task failed, will retry", "error", cause, "retry_at", *retryAt)
}
