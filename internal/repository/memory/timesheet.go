package memory

import (
	"context"
	"slices"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

type TimesheetRepository struct {
	s *Store
}

func (r *TimesheetRepository) ReplaceForEmployeeMonth(ctx context.Context, employeeID int64, month time.Time, items []timesheet.Item) error {
	from, to := dates.MonthStart(month), dates.MonthEnd(month)
	return r.s.write(ctx, func(t *tables) error {
		kept := slices.DeleteFunc(slices.Clone(t.timesheets[employeeID]), func(i timesheet.Item) bool {
			return !i.Dt.Before(from) && !i.Dt.After(to)
		})
		for _, item := range items {
			item.ID = t.id()
			item.EmployeeID = employeeID
			kept = append(kept, item.Clone())
		}
		t.timesheets[employeeID] = kept
		return nil
	})
}

func (r *TimesheetRepository) List(ctx context.Context, employeeID int64, month time.Time) ([]timesheet.Item, error) {
	from, to := dates.MonthStart(month), dates.MonthEnd(month)
	var out []timesheet.Item
	r.s.read(func(t *tables) {
		for _, i := range t.timesheets[employeeID] {
			if !i.Dt.Before(from) && !i.Dt.After(to) {
				out = append(out, i.Clone())
			}
		}
	})
	slices.SortStableFunc(out, func(a, b timesheet.Item) int {
		if c := a.Dt.Compare(b.Dt); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, nil
}
