package timesheet

import (
	"context"
	"time"
)

type Service interface {
	Recalc(ctx context.Context, employeeID int64, month time.Time) (Result, error)
}
