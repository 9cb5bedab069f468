package staff

import (
	"context"
	"time"
)

// EmploymentFilter selects employments intersecting [DtFrom, DtTo].
type EmploymentFilter struct {
	EmployeeIDs []int64
	UserIDs     []int64
	ShopIDs     []int64
	DtFrom      *time.Time
	DtTo        *time.Time
}

type Repository interface {
	GetUser(ctx context.Context, id int64) (User, error)
	ListUsers(ctx context.Context, ids []int64) ([]User, error)
	GetEmployee(ctx context.Context, id int64) (Employee, error)
	ListEmployees(ctx context.Context, ids []int64) ([]Employee, error)
	ListEmployeesByUser(ctx context.Context, userID int64) ([]Employee, error)
	// ListEmployments returns matches ordered by id (insertion order).
	ListEmployments(ctx context.Context, filter EmploymentFilter) ([]Employment, error)
	GetEmployment(ctx context.Context, id int64) (Employment, error)
	ListPositions(ctx context.Context, ids []int64) ([]Position, error)
	ListGroups(ctx context.Context, ids []int64) ([]Group, error)
}
