package memory

import (
	"context"
	"slices"

	"github.com/cmlabs-hris/timetable-core/internal/domain/attendance"
)

type AttendanceRepository struct {
	s *Store
}

func (r *AttendanceRepository) Create(ctx context.Context, rec *attendance.Record) error {
	return r.s.write(ctx, func(t *tables) error {
		rec.ID = t.id()
		rec.CreatedAt = r.s.now()
		t.records = append(t.records, *rec)
		return nil
	})
}

func (r *AttendanceRepository) List(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	var out []attendance.Record
	r.s.read(func(t *tables) {
		for _, rec := range t.records {
			if rec.Dttm.Before(filter.From) || !rec.Dttm.Before(filter.To) {
				continue
			}
			if len(filter.ShopIDs) > 0 && !slices.Contains(filter.ShopIDs, rec.ShopID) {
				continue
			}
			if len(filter.UserIDs) > 0 && !slices.Contains(filter.UserIDs, rec.UserID) {
				continue
			}
			if len(filter.EmployeeIDs) > 0 {
				if rec.EmployeeID != nil {
					if !slices.Contains(filter.EmployeeIDs, *rec.EmployeeID) {
						continue
					}
				} else if !r.userOwnsAny(t, rec.UserID, filter.EmployeeIDs) {
					continue
				}
			}
			out = append(out, rec)
		}
	})
	slices.SortStableFunc(out, func(a, b attendance.Record) int {
		if c := a.Dttm.Compare(b.Dttm); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, nil
}

// userOwnsAny matches terminal records, which carry only the user.
func (r *AttendanceRepository) userOwnsAny(t *tables, userID int64, employeeIDs []int64) bool {
	for _, id := range employeeIDs {
		if e, ok := t.employees[id]; ok && e.UserID == userID {
			return true
		}
	}
	return false
}
