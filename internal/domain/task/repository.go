package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Enqueue(ctx context.Context, t Task) error
	// ClaimDue marks up to limit pending tasks with RunAt <= now as running
	// and pushes their RunAt to now+lease, so a crashed worker's tasks are
	// claimed again once the lease runs out.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Task, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	// MarkFailed records the error; a nil retryAt marks the task dead.
	MarkFailed(ctx context.Context, id uuid.UUID, lastErr string, retryAt *time.Time) error
	Get(ctx context.Context, id uuid.UUID) (Task, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Task, error)
}
