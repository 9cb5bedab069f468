package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

const DefaultMaxAttempts = 5

// Outbox implements task.Scheduler by writing task rows through the
// repository, so a task scheduled inside a transaction commits with it.
type Outbox struct {
	repo        task.Repository
	maxAttempts int
	now         func() time.Time
}

func NewOutbox(repo task.Repository, maxAttempts int) *Outbox {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Outbox{repo: repo, maxAttempts: maxAttempts, now: time.Now}
}

// SetClock overrides the time source for tasks scheduled without runAt.
func (o *Outbox) SetClock(now func() time.Time) {
	o.now = now
}

func (o *Outbox) Schedule(ctx context.Context, kind task.Kind, payload any, runAt *time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}

	t := task.Task{
		ID:          uuid.New(),
		Kind:        kind,
		Payload:     raw,
		RunAt:       o.now(),
		MaxAttempts: o.maxAttempts,
		Status:      task.StatusPending,
	}
	if runAt != nil {
		t.RunAt = *runAt
	}

	if err := o.repo.Enqueue(ctx, t); err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, workerday.ExternalTransient(err))
	}
	return nil
}
