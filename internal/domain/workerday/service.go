package workerday

import (
	"context"
	"time"
)

// Service is the schedule store used by the outer layers.
type Service interface {
	Get(ctx context.Context, employeeID int64, dt time.Time, isFact, isApproved bool) (*WorkerDay, error)
	List(ctx context.Context, q Query) ([]WorkerDay, error)
	Create(ctx context.Context, userID int64, in Input) (WorkerDay, error)
	Update(ctx context.Context, userID int64, id int64, in Input) (WorkerDay, error)
	Delete(ctx context.Context, userID int64, ids []int64) error
	BatchUpdateOrCreate(ctx context.Context, userID int64, req BatchRequest) (BatchResult, error)
	CopyApproved(ctx context.Context, userID int64, req CopyApprovedRequest) (int, error)
	Duplicate(ctx context.Context, userID int64, req DuplicateRequest) ([]WorkerDay, error)
	SetBlocked(ctx context.Context, userID int64, ids []int64, blocked bool) error
}
