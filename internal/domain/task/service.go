package task

import (
	"context"
	"time"
)

// Scheduler enqueues deferred work. Inside a transaction the task becomes
// visible only when that transaction commits.
type Scheduler interface {
	Schedule(ctx context.Context, kind Kind, payload any, runAt *time.Time) error
}

// Handler executes one task kind. Handlers must be idempotent.
type Handler func(ctx context.Context, t Task) error
