package memory

import (
	"context"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

type WorkerDayRepository struct {
	s *Store
}

func (r *WorkerDayRepository) GetByID(ctx context.Context, id int64) (workerday.WorkerDay, error) {
	var (
		wd    workerday.WorkerDay
		found bool
	)
	r.s.read(func(t *tables) {
		wd, found = t.workerDays[id]
		wd = wd.Clone()
	})
	if !found {
		return workerday.WorkerDay{}, workerday.ErrWorkerDayNotFound
	}
	return wd, nil
}

func (r *WorkerDayRepository) List(ctx context.Context, q workerday.Query) ([]workerday.WorkerDay, error) {
	var out []workerday.WorkerDay
	r.s.read(func(t *tables) {
		for _, wd := range t.workerDays {
			if q.Match(wd) {
				out = append(out, wd.Clone())
			}
		}
	})
	workerday.SortRows(out)
	return out, nil
}

// ListForUpdate needs no row locks: transactions are already serialized.
func (r *WorkerDayRepository) ListForUpdate(ctx context.Context, q workerday.Query) ([]workerday.WorkerDay, error) {
	return r.List(ctx, q)
}

// slotIndex mirrors worker_days_slot_uniq: one row per employee, dt,
// is_fact and is_approved once an employee is set.
const slotIndex = "worker_days_slot_uniq"

func checkSlot(t *tables, wd *workerday.WorkerDay) error {
	key, ok := wd.Key()
	if !ok {
		return nil
	}
	for id, other := range t.workerDays {
		if id == wd.ID {
			continue
		}
		k, ok := other.Key()
		if ok && k.EmployeeID == key.EmployeeID && k.Dt.Equal(key.Dt) && k.IsFact == key.IsFact && k.IsApproved == key.IsApproved {
			v := workerday.InvariantViolation("duplicate row for %s", slotIndex)
			v.Details = map[string]any{"constraint": slotIndex, "conflicting_id": id}
			return v
		}
	}
	return nil
}

func (r *WorkerDayRepository) Create(ctx context.Context, wd *workerday.WorkerDay) error {
	return r.s.write(ctx, func(t *tables) error {
		if err := checkSlot(t, wd); err != nil {
			return err
		}
		now := r.s.now()
		wd.ID = t.id()
		wd.CreatedAt, wd.UpdatedAt = now, now
		t.workerDays[wd.ID] = wd.Clone()
		return nil
	})
}

func (r *WorkerDayRepository) Update(ctx context.Context, wd *workerday.WorkerDay) error {
	return r.s.write(ctx, func(t *tables) error {
		if _, ok := t.workerDays[wd.ID]; !ok {
			return workerday.ErrWorkerDayNotFound
		}
		if err := checkSlot(t, wd); err != nil {
			return err
		}
		wd.UpdatedAt = r.s.now()
		t.workerDays[wd.ID] = wd.Clone()
		return nil
	})
}

func (r *WorkerDayRepository) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.s.write(ctx, func(t *tables) error {
		gone := make(map[int64]bool, len(ids))
		for _, id := range ids {
			delete(t.workerDays, id)
			gone[id] = true
		}
		for id, wd := range t.workerDays {
			changed := false
			if wd.ParentWorkerDayID != nil && gone[*wd.ParentWorkerDayID] {
				wd.ParentWorkerDayID = nil
				changed = true
			}
			if wd.ClosestPlanApprovedID != nil && gone[*wd.ClosestPlanApprovedID] {
				wd.ClosestPlanApprovedID = nil
				changed = true
			}
			if changed {
				t.workerDays[id] = wd
			}
		}
		return nil
	})
}

func (r *WorkerDayRepository) SetClosestPlan(ctx context.Context, factID int64, planID *int64) error {
	return r.s.write(ctx, func(t *tables) error {
		wd, ok := t.workerDays[factID]
		if !ok {
			return workerday.ErrWorkerDayNotFound
		}
		if planID != nil {
			id := *planID
			wd.ClosestPlanApprovedID = &id
		} else {
			wd.ClosestPlanApprovedID = nil
		}
		t.workerDays[factID] = wd
		return nil
	})
}

func (r *WorkerDayRepository) SetBlocked(ctx context.Context, ids []int64, blocked bool) error {
	return r.s.write(ctx, func(t *tables) error {
		for _, id := range ids {
			wd, ok := t.workerDays[id]
			if !ok {
				continue
			}
			wd.IsBlocked = blocked
			wd.UpdatedAt = r.s.now()
			t.workerDays[id] = wd
		}
		return nil
	})
}

func (r *WorkerDayRepository) SumPlanHours(ctx context.Context, employeeIDs []int64, from, to time.Time) (map[int64]time.Duration, error) {
	q := workerday.NewQuery().ForEmployees(employeeIDs...).InRange(from, to).Plan().Approved().NotCanceled()
	out := make(map[int64]time.Duration, len(employeeIDs))
	r.s.read(func(t *tables) {
		for _, wd := range t.workerDays {
			if q.Match(wd) {
				out[*wd.EmployeeID] += wd.WorkHours
			}
		}
	})
	return out, nil
}
