package memory

import (
	"context"
	"slices"

	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
)

type StaffRepository struct {
	s *Store
}

func (r *StaffRepository) GetUser(ctx context.Context, id int64) (staff.User, error) {
	var (
		u  staff.User
		ok bool
	)
	r.s.read(func(t *tables) { u, ok = t.users[id] })
	if !ok {
		return staff.User{}, staff.ErrUserNotFound
	}
	return u, nil
}

func (r *StaffRepository) ListUsers(ctx context.Context, ids []int64) ([]staff.User, error) {
	var out []staff.User
	r.s.read(func(t *tables) {
		for _, id := range ids {
			if u, ok := t.users[id]; ok {
				out = append(out, u)
			}
		}
	})
	return out, nil
}

func (r *StaffRepository) GetEmployee(ctx context.Context, id int64) (staff.Employee, error) {
	var (
		e  staff.Employee
		ok bool
	)
	r.s.read(func(t *tables) { e, ok = t.employees[id] })
	if !ok {
		return staff.Employee{}, staff.ErrEmployeeNotFound
	}
	return e, nil
}

func (r *StaffRepository) ListEmployees(ctx context.Context, ids []int64) ([]staff.Employee, error) {
	var out []staff.Employee
	r.s.read(func(t *tables) {
		for _, e := range t.employees {
			if len(ids) == 0 || slices.Contains(ids, e.ID) {
				out = append(out, e)
			}
		}
	})
	slices.SortFunc(out, func(a, b staff.Employee) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (r *StaffRepository) ListEmployeesByUser(ctx context.Context, userID int64) ([]staff.Employee, error) {
	var out []staff.Employee
	r.s.read(func(t *tables) {
		for _, e := range t.employees {
			if e.UserID == userID {
				out = append(out, e)
			}
		}
	})
	slices.SortFunc(out, func(a, b staff.Employee) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (r *StaffRepository) ListEmployments(ctx context.Context, filter staff.EmploymentFilter) ([]staff.Employment, error) {
	var out []staff.Employment
	r.s.read(func(t *tables) {
		for _, e := range t.employments {
			if len(filter.EmployeeIDs) > 0 && !slices.Contains(filter.EmployeeIDs, e.EmployeeID) {
				continue
			}
			if len(filter.ShopIDs) > 0 && !slices.Contains(filter.ShopIDs, e.ShopID) {
				continue
			}
			if len(filter.UserIDs) > 0 {
				emp, ok := t.employees[e.EmployeeID]
				if !ok || !slices.Contains(filter.UserIDs, emp.UserID) {
					continue
				}
			}
			if filter.DtTo != nil && e.DtHired != nil && e.DtHired.After(*filter.DtTo) {
				continue
			}
			if filter.DtFrom != nil && e.DtFired != nil && e.DtFired.Before(*filter.DtFrom) {
				continue
			}
			out = append(out, e)
		}
	})
	slices.SortStableFunc(out, func(a, b staff.Employment) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (r *StaffRepository) GetEmployment(ctx context.Context, id int64) (staff.Employment, error) {
	var (
		found staff.Employment
		ok    bool
	)
	r.s.read(func(t *tables) {
		for _, e := range t.employments {
			if e.ID == id {
				found, ok = e, true
				return
			}
		}
	})
	if !ok {
		return staff.Employment{}, staff.ErrEmploymentNotFound
	}
	return found, nil
}

func (r *StaffRepository) ListPositions(ctx context.Context, ids []int64) ([]staff.Position, error) {
	var out []staff.Position
	r.s.read(func(t *tables) {
		for _, id := range ids {
			if p, ok := t.positions[id]; ok {
				out = append(out, p)
			}
		}
	})
	return out, nil
}

func (r *StaffRepository) ListGroups(ctx context.Context, ids []int64) ([]staff.Group, error) {
	var out []staff.Group
	r.s.read(func(t *tables) {
		for _, id := range ids {
			if g, ok := t.groups[id]; ok {
				out = append(out, g)
			}
		}
	})
	return out, nil
}
