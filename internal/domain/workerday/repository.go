package workerday

import (
	"context"
	"time"
)

// Repository persists worker days. Methods honour a transaction carried in ctx.
type Repository interface {
	GetByID(ctx context.Context, id int64) (WorkerDay, error)
	List(ctx context.Context, q Query) ([]WorkerDay, error)
	// ListForUpdate is List with row locks held until the surrounding
	// transaction ends.
	ListForUpdate(ctx context.Context, q Query) ([]WorkerDay, error)
	Create(ctx context.Context, wd *WorkerDay) error
	Update(ctx context.Context, wd *WorkerDay) error
	// Delete removes the rows with their details and outsource links, and
	// clears parent / closest-plan references pointing at them.
	Delete(ctx context.Context, ids []int64) error
	SetClosestPlan(ctx context.Context, factID int64, planID *int64) error
	SetBlocked(ctx context.Context, ids []int64, blocked bool) error
	// SumPlanHours returns approved plan work hours per employee within [from, to].
	SumPlanHours(ctx context.Context, employeeIDs []int64, from, to time.Time) (map[int64]time.Duration, error)
}
