package notification

import (
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

// WorkerDayContext is the stable payload for vacancy and schedule events.
func WorkerDayContext(wd workerday.WorkerDay) map[string]any {
	ctx := map[string]any{
		"worker_day_id": wd.ID,
		"dt":            wd.Dt.Format("2006-01-02"),
	}
	if wd.ShopID != nil {
		ctx["shop_id"] = *wd.ShopID
	}
	if start, end, ok := wd.Interval(); ok {
		ctx["dttm_from"] = start.UTC().Format("2006-01-02T15:04:05Z07:00")
		ctx["dttm_to"] = end.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if len(wd.Details) > 0 {
		ctx["work_type_id"] = wd.Details[0].WorkTypeID
	}
	if wd.EmployeeID != nil {
		ctx["employee_id"] = *wd.EmployeeID
	}
	return ctx
}
