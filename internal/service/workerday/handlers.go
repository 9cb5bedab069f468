package workerday

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

// RelinkHandler runs a closest-plan refresh in its own transaction.
func RelinkHandler(tx database.Transactor, linker *Linker) task.Handler {
	return func(ctx context.Context, t task.Task) error {
		var p task.RelinkPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", task.ErrInvalidPayload, err)
		}
		var changed int
		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			changed, err = linker.Relink(ctx, p.EmployeeIDs, p.DtFrom, p.DtTo, p.RecalcManual)
			return err
		})
		if err != nil {
			return err
		}
		slog.Info("closest plans relinked", "task_id", t.ID, "employees", len(p.EmployeeIDs), "changed", changed)
		return nil
	}
}

// BlockDaysHandler toggles protection on behalf of the user who asked.
func BlockDaysHandler(svc workerday.Service) task.Handler {
	return func(ctx context.Context, t task.Task) error {
		var p task.BlockDaysPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", task.ErrInvalidPayload, err)
		}
		return svc.SetBlocked(ctx, p.UserID, p.WorkerDayIDs, p.Blocked)
	}
}
