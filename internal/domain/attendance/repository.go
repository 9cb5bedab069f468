package attendance

import (
	"context"
	"time"
)

type Filter struct {
	ShopIDs     []int64
	EmployeeIDs []int64
	UserIDs     []int64
	From        time.Time
	To          time.Time
}

type Repository interface {
	Create(ctx context.Context, rec *Record) error
	// List returns records with From <= dttm < To ordered by dttm, id.
	List(ctx context.Context, filter Filter) ([]Record, error)
}
