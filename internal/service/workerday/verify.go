package workerday

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

// SlotSet collects the (employee, dt, is_fact) slots an atomic call
// touched so they can be verified before commit.
type SlotSet map[workerday.Slot]struct{}

func (s SlotSet) Add(rows ...workerday.WorkerDay) {
	for _, wd := range rows {
		if slot, ok := wd.Slot(); ok {
			s[slot] = struct{}{}
		}
	}
}

func (s SlotSet) Slots() []workerday.Slot {
	out := make([]workerday.Slot, 0, len(s))
	for slot := range s {
		out = append(out, slot)
	}
	slices.SortFunc(out, func(a, b workerday.Slot) int {
		if c := cmp.Compare(a.EmployeeID, b.EmployeeID); c != 0 {
			return c
		}
		return a.Dt.Compare(b.Dt)
	})
	return out
}

// Verify re-checks the cross-row invariants for the touched slots: work
// time overlap first, then key uniqueness, then the parent and closest-plan
// links. It runs at the end of an atomic call, inside its transaction.
func Verify(ctx context.Context, repo workerday.Repository, slots []workerday.Slot) error {
	byEmployee := make(map[int64][]time.Time)
	for _, slot := range slots {
		byEmployee[slot.EmployeeID] = append(byEmployee[slot.EmployeeID], slot.Dt)
	}
	employeeIDs := make([]int64, 0, len(byEmployee))
	for id := range byEmployee {
		employeeIDs = append(employeeIDs, id)
	}
	slices.Sort(employeeIDs)

	for _, empID := range employeeIDs {
		rows, err := repo.List(ctx, workerday.NewQuery().ForEmployees(empID).OnDates(byEmployee[empID]...))
		if err != nil {
			return fmt.Errorf("load rows of employee %d: %w", empID, err)
		}
		if err := CheckOverlap(rows); err != nil {
			return err
		}
		if err := CheckUnique(rows); err != nil {
			return err
		}
		if err := checkLinks(ctx, repo, rows); err != nil {
			return err
		}
	}
	return nil
}

// Preflight checks the slots rows would land in as if rows were saved and
// the rows in gone deleted: work time overlap first, then key uniqueness.
// It runs before the writes so the unique index never rejects them first.
func Preflight(ctx context.Context, repo workerday.Repository, rows []workerday.WorkerDay, gone []int64) error {
	replaced := make(map[int64]bool, len(gone)+len(rows))
	for _, id := range gone {
		replaced[id] = true
	}
	byEmployee := make(map[int64][]time.Time)
	for _, wd := range rows {
		if wd.EmployeeID == nil {
			continue
		}
		byEmployee[*wd.EmployeeID] = append(byEmployee[*wd.EmployeeID], wd.Dt)
		if wd.ID != 0 {
			replaced[wd.ID] = true
		}
	}

	for _, empID := range slices.Sorted(maps.Keys(byEmployee)) {
		existing, err := repo.List(ctx, workerday.NewQuery().ForEmployees(empID).OnDates(byEmployee[empID]...))
		if err != nil {
			return fmt.Errorf("load rows of employee %d: %w", empID, err)
		}
		projected := slices.DeleteFunc(existing, func(wd workerday.WorkerDay) bool { return replaced[wd.ID] })
		for _, wd := range rows {
			if wd.EmployeeID != nil && *wd.EmployeeID == empID {
				projected = append(projected, wd)
			}
		}
		if err := CheckOverlap(projected); err != nil {
			return err
		}
		if err := CheckUnique(projected); err != nil {
			return err
		}
	}
	return nil
}

// CheckOverlap sorts each (employee, dt, is_fact, is_approved) group by
// start and fails on the first adjacent pair overlapping by a minute or more.
func CheckOverlap(rows []workerday.WorkerDay) error {
	groups := make(map[workerday.Key][]workerday.WorkerDay)
	var keys []workerday.Key
	for _, wd := range rows {
		key, ok := wd.Key()
		if !ok || wd.Canceled {
			continue
		}
		if _, _, ok := wd.Interval(); !ok {
			continue
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], wd)
	}

	for _, key := range keys {
		group := groups[key]
		slices.SortStableFunc(group, func(a, b workerday.WorkerDay) int {
			if c := a.DttmWorkStart.Compare(*b.DttmWorkStart); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]
			end := *prev.DttmWorkEnd
			if cur.DttmWorkEnd.Before(end) {
				end = *cur.DttmWorkEnd
			}
			if end.Sub(*cur.DttmWorkStart) >= time.Minute {
				return &workerday.WorkTimeOverlapError{
					EmployeeID: key.EmployeeID,
					Dt:         key.Dt,
					FirstID:    prev.ID,
					SecondID:   cur.ID,
					From:       *cur.DttmWorkStart,
					To:         end,
				}
			}
		}
	}
	return nil
}

// CheckUnique enforces one row per (employee, dt, is_fact, is_approved).
func CheckUnique(rows []workerday.WorkerDay) error {
	seen := make(map[workerday.Key]int64)
	for _, wd := range rows {
		key, ok := wd.Key()
		if !ok {
			continue
		}
		if other, dup := seen[key]; dup {
			return workerday.InvariantViolation("employee %d has two %s %s days on %s (ids %d and %d)",
				key.EmployeeID, approvedLabel(key.IsApproved), workerday.GraphOf(key.IsFact), key.Dt.Format("2006-01-02"), other, wd.ID)
		}
		seen[key] = wd.ID
	}
	return nil
}

func approvedLabel(approved bool) string {
	if approved {
		return "approved"
	}
	return "draft"
}

func checkLinks(ctx context.Context, repo workerday.Repository, rows []workerday.WorkerDay) error {
	var ids []int64
	for _, wd := range rows {
		if wd.ParentWorkerDayID != nil {
			ids = append(ids, *wd.ParentWorkerDayID)
		}
		if wd.ClosestPlanApprovedID != nil {
			ids = append(ids, *wd.ClosestPlanApprovedID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	linked, err := repo.List(ctx, workerday.NewQuery().ByIDs(ids...))
	if err != nil {
		return fmt.Errorf("load linked rows: %w", err)
	}
	byID := make(map[int64]workerday.WorkerDay, len(linked))
	for _, wd := range linked {
		byID[wd.ID] = wd
	}

	for _, wd := range rows {
		if wd.ParentWorkerDayID != nil {
			if wd.IsApproved {
				return workerday.InvariantViolation("approved worker day %d must not have a parent", wd.ID)
			}
			parent, ok := byID[*wd.ParentWorkerDayID]
			if !ok || !parent.IsApproved || !workerday.EqualPtr(parent.EmployeeID, wd.EmployeeID) ||
				!parent.Dt.Equal(wd.Dt) || parent.IsFact != wd.IsFact {
				return workerday.InvariantViolation("draft %d must point to the approved day of the same employee, date and graph", wd.ID)
			}
		}
		if wd.ClosestPlanApprovedID != nil {
			plan, ok := byID[*wd.ClosestPlanApprovedID]
			if !wd.IsFact || !ok || plan.IsFact || !plan.IsApproved {
				return workerday.InvariantViolation("worker day %d: closest plan must be an approved plan day", wd.ID)
			}
		}
	}
	return nil
}
