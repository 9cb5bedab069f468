package timesheet

import (
	"context"
	"time"
)

type Repository interface {
	// ReplaceForEmployeeMonth deletes the employee's items in the month and
	// inserts items in their place.
	ReplaceForEmployeeMonth(ctx context.Context, employeeID int64, month time.Time, items []Item) error
	List(ctx context.Context, employeeID int64, month time.Time) ([]Item, error)
}
