package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/timetable-core/internal/domain/attendance"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
)

// ReconcileHandler runs a scheduled reconcile_fact task.
func ReconcileHandler(svc attendance.Service) task.Handler {
	return func(ctx context.Context, t task.Task) error {
		var p task.ReconcilePayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", task.ErrInvalidPayload, err)
		}
		scope := attendance.Scope{DtFrom: p.DtFrom, DtTo: p.DtTo, ShopIDs: p.ShopIDs}
		for _, ed := range p.EmployeeDates {
			scope.EmployeeDates = append(scope.EmployeeDates, attendance.EmployeeDate{EmployeeID: ed.EmployeeID, Dt: ed.Dt})
		}

		result, err := svc.Reconcile(ctx, scope)
		if errors.Is(err, attendance.ErrEmptyScope) {
			return fmt.Errorf("%w: %v", task.ErrInvalidPayload, err)
		}
		if err != nil {
			return err
		}
		slog.Info("facts reconciled",
			"task_id", t.ID,
			"created", result.Created,
			"updated", result.Updated,
			"deleted", result.Deleted,
		)
		return nil
	}
}
