package attendance

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/cmlabs-hris/timetable-core/internal/domain/attendance"
	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	wdsvc "github.com/cmlabs-hris/timetable-core/internal/service/workerday"
)

// shift is what one employee's scans on one local date add up to.
type shift struct {
	slot   workerday.Slot
	shopID int64
	start  time.Time
	end    time.Time
	// complete is false when nothing could be derived, e.g. only a
	// LEAVING scan or a COMING after the shop closed.
	complete bool
	// checkedOut is false when the last COMING has no LEAVING.
	checkedOut bool
}

// buildShift walks records sorted by dttm and alternates COMING and
// LEAVING. Several shifts on one date merge into one fact spanning the
// first COMING to the last LEAVING. A dangling COMING runs to closeAt.
func buildShift(records []attendance.Record, closeAt func(shopID int64) (time.Time, bool)) shift {
	sh := shift{checkedOut: true}
	var open *attendance.Record
	for i := range records {
		rec := records[i]
		switch rec.Type {
		case attendance.Coming:
			if open != nil {
				continue
			}
			open = &rec
			if !sh.complete && sh.start.IsZero() {
				sh.start = rec.Dttm
				sh.shopID = rec.ShopID
			}
		case attendance.Leaving:
			if open != nil {
				sh.end = rec.Dttm
				sh.complete = true
				open = nil
			} else if sh.complete {
				sh.end = rec.Dttm
			}
		}
	}
	if open != nil {
		sh.checkedOut = false
		if end, ok := closeAt(open.ShopID); ok && end.After(open.Dttm) && end.After(sh.end) {
			sh.end = end
			sh.complete = true
		}
	}
	if sh.complete && !sh.end.After(sh.start) {
		sh.complete = false
	}
	return sh
}

// Reconcile rebuilds fact days from attendance for scope. Facts nobody
// edited by hand are replaced; manual facts win over scans. Rows that come
// out the same keep their ids.
func (s *service) Reconcile(ctx context.Context, scope attendance.Scope) (attendance.Result, error) {
	byRange := scope.DtFrom != nil && scope.DtTo != nil && len(scope.ShopIDs) > 0
	if !byRange && len(scope.EmployeeDates) == 0 {
		return attendance.Result{}, attendance.ErrEmptyScope
	}

	var result attendance.Result
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		result = attendance.Result{}
		shops := newShopCache(s.org)

		shifts, err := s.collectShifts(ctx, scope, shops)
		if err != nil {
			return err
		}
		existing, err := s.existingFacts(ctx, scope, shifts)
		if err != nil {
			return err
		}

		approved := make(map[workerday.Slot]workerday.WorkerDay)
		drafts := make(map[workerday.Slot]workerday.WorkerDay)
		for _, wd := range existing {
			slot, ok := wd.Slot()
			if !ok {
				continue
			}
			if wd.IsApproved {
				approved[slot] = wd
			} else {
				drafts[slot] = wd
			}
		}

		kept := make(map[int64]bool)
		touched := wdsvc.SlotSet{}
		for _, sh := range shifts {
			if !sh.complete {
				continue
			}
			old, hasOld := approved[sh.slot]
			if hasOld && old.ManuallyEdited() {
				kept[old.ID] = true
				continue
			}
			fact, changed, err := s.writeFact(ctx, sh, old, hasOld)
			if err != nil {
				return err
			}
			kept[fact.ID] = true
			touched.Add(fact)
			switch {
			case !hasOld:
				result.Created++
			case changed:
				result.Updated++
			}

			draft, hasDraft := drafts[sh.slot]
			twin, err := s.writeDraft(ctx, fact, draft, hasDraft)
			if err != nil {
				return err
			}
			kept[twin.ID] = true
		}

		var doomed []int64
		for _, wd := range existing {
			if kept[wd.ID] || wd.ManuallyEdited() || !inScope(scope, wd) {
				continue
			}
			doomed = append(doomed, wd.ID)
			touched.Add(wd)
		}
		if len(doomed) > 0 {
			if err := s.days.Delete(ctx, doomed); err != nil {
				return fmt.Errorf("delete stale facts: %w", err)
			}
			for _, wd := range existing {
				if slices.Contains(doomed, wd.ID) && wd.IsApproved {
					result.Deleted++
				}
			}
		}

		if err := wdsvc.Verify(ctx, s.days, touched.Slots()); err != nil {
			return err
		}
		if err := s.scheduleTimesheets(ctx, touched.Slots()); err != nil {
			return err
		}
		return s.publishMissingScans(ctx, scope, shifts, shops)
	})
	if err != nil {
		return attendance.Result{}, err
	}
	return result, nil
}

// collectShifts loads the records of scope, resolves terminal users to
// employees and folds each (employee, local date) group into a shift.
func (s *service) collectShifts(ctx context.Context, scope attendance.Scope, shops *shopCache) ([]shift, error) {
	filter := attendance.Filter{}
	wanted := make(map[workerday.Slot]bool)
	if len(scope.EmployeeDates) > 0 {
		var lo, hi time.Time
		for i, ed := range scope.EmployeeDates {
			filter.EmployeeIDs = append(filter.EmployeeIDs, ed.EmployeeID)
			wanted[workerday.Slot{EmployeeID: ed.EmployeeID, Dt: ed.Dt}] = true
			if i == 0 || ed.Dt.Before(lo) {
				lo = ed.Dt
			}
			if i == 0 || ed.Dt.After(hi) {
				hi = ed.Dt
			}
		}
		filter.From, filter.To = lo.AddDate(0, 0, -1), hi.AddDate(0, 0, 2)
	} else {
		filter.ShopIDs = scope.ShopIDs
		filter.From, filter.To = scope.DtFrom.AddDate(0, 0, -1), scope.DtTo.AddDate(0, 0, 2)
	}

	records, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load attendance records: %w", err)
	}

	groups := make(map[workerday.Slot][]attendance.Record)
	resolved := make(map[[3]int64]*int64)
	for _, rec := range records {
		shop, err := shops.get(ctx, rec.ShopID)
		if err != nil {
			return nil, err
		}
		dt := dates.LocalDate(rec.Dttm, shop.Location())
		employeeID := rec.EmployeeID
		if employeeID == nil {
			key := [3]int64{rec.UserID, rec.ShopID, dt.Unix()}
			id, seen := resolved[key]
			if !seen {
				if id, err = s.resolveEmployee(ctx, rec.UserID, rec.ShopID, dt); err != nil {
					return nil, err
				}
				resolved[key] = id
			}
			employeeID = id
		}
		if employeeID == nil {
			continue
		}
		slot := workerday.Slot{EmployeeID: *employeeID, Dt: dt}
		if len(wanted) > 0 && !wanted[slot] {
			continue
		}
		if len(wanted) == 0 && (dt.Before(*scope.DtFrom) || dt.After(*scope.DtTo)) {
			continue
		}
		groups[slot] = append(groups[slot], rec)
	}

	shifts := make([]shift, 0, len(groups))
	for slot, recs := range groups {
		sh := buildShift(recs, func(shopID int64) (time.Time, bool) {
			shop, err := shops.get(ctx, shopID)
			if err != nil {
				return time.Time{}, false
			}
			_, end, ok := shop.WorkingWindow(slot.Dt)
			return end, ok
		})
		sh.slot = slot
		if sh.shopID == 0 {
			sh.shopID = recs[0].ShopID
		}
		shifts = append(shifts, sh)
	}
	slices.SortFunc(shifts, func(a, b shift) int {
		if c := cmp.Compare(a.slot.EmployeeID, b.slot.EmployeeID); c != 0 {
			return c
		}
		return a.slot.Dt.Compare(b.slot.Dt)
	})
	return shifts, nil
}

// existingFacts locks the facts in scope plus any fact occupying a slot a
// shift is about to fill.
func (s *service) existingFacts(ctx context.Context, scope attendance.Scope, shifts []shift) ([]workerday.WorkerDay, error) {
	var queries []workerday.Query
	if len(scope.EmployeeDates) > 0 {
		for _, ed := range scope.EmployeeDates {
			queries = append(queries, workerday.NewQuery().ForEmployees(ed.EmployeeID).OnDates(ed.Dt).Fact())
		}
	} else {
		queries = append(queries, workerday.NewQuery().ForShops(scope.ShopIDs...).InRange(*scope.DtFrom, *scope.DtTo).Fact())
	}
	for _, sh := range shifts {
		queries = append(queries, workerday.NewQuery().ForEmployees(sh.slot.EmployeeID).OnDates(sh.slot.Dt).Fact())
	}

	seen := make(map[int64]bool)
	var out []workerday.WorkerDay
	for _, q := range queries {
		rows, err := s.days.ListForUpdate(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("load facts: %w", err)
		}
		for _, wd := range rows {
			if !seen[wd.ID] {
				seen[wd.ID] = true
				out = append(out, wd)
			}
		}
	}
	slices.SortFunc(out, func(a, b workerday.WorkerDay) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func inScope(scope attendance.Scope, wd workerday.WorkerDay) bool {
	if len(scope.EmployeeDates) > 0 {
		return wd.EmployeeID != nil && slices.ContainsFunc(scope.EmployeeDates, func(ed attendance.EmployeeDate) bool {
			return ed.EmployeeID == *wd.EmployeeID && ed.Dt.Equal(wd.Dt)
		})
	}
	return wd.ShopID != nil && slices.Contains(scope.ShopIDs, *wd.ShopID) &&
		!wd.Dt.Before(*scope.DtFrom) && !wd.Dt.After(*scope.DtTo)
}

// writeFact creates or refreshes the approved fact for sh, paired to its
// closest plan with the plan's work type details.
func (s *service) writeFact(ctx context.Context, sh shift, old workerday.WorkerDay, hasOld bool) (workerday.WorkerDay, bool, error) {
	fact := workerday.WorkerDay{}
	if hasOld {
		fact = old.Clone()
	}
	fact.EmployeeID = workerday.Ptr(sh.slot.EmployeeID)
	fact.EmploymentID = nil
	fact.ShopID = workerday.Ptr(sh.shopID)
	fact.Dt = sh.slot.Dt
	fact.Type = workerday.TypeWorkday
	fact.DttmWorkStart = workerday.Ptr(sh.start)
	fact.DttmWorkEnd = workerday.Ptr(sh.end)
	fact.IsFact = true
	fact.IsApproved = true
	fact.IsVacancy = false
	fact.Canceled = false
	fact.ParentWorkerDayID = nil
	fact.Details = nil
	fact.Source = workerday.SourceFactFromAttendance

	plan, err := s.linker.Pair(ctx, &fact)
	if err != nil {
		return workerday.WorkerDay{}, false, err
	}
	if plan != nil {
		fact.Details = slices.Clone(plan.Details)
	}
	if err := s.hours.Fill(ctx, &fact); err != nil {
		return workerday.WorkerDay{}, false, err
	}
	if err := fact.CheckShape(); err != nil {
		return workerday.WorkerDay{}, false, err
	}

	if !hasOld {
		if err := s.days.Create(ctx, &fact); err != nil {
			return workerday.WorkerDay{}, false, fmt.Errorf("create fact: %w", err)
		}
		return fact, true, nil
	}
	if sameFact(old, fact) {
		return old, false, nil
	}
	if err := s.days.Update(ctx, &fact); err != nil {
		return workerday.WorkerDay{}, false, fmt.Errorf("update fact %d: %w", fact.ID, err)
	}
	return fact, true, nil
}

// writeDraft keeps the draft twin of an approved fact in step. Manual
// drafts are only re-pointed at their parent.
func (s *service) writeDraft(ctx context.Context, fact, old workerday.WorkerDay, hasOld bool) (workerday.WorkerDay, error) {
	if hasOld && old.ManuallyEdited() {
		if workerday.EqualPtr(old.ParentWorkerDayID, &fact.ID) {
			return old, nil
		}
		old.ParentWorkerDayID = workerday.Ptr(fact.ID)
		if err := s.days.Update(ctx, &old); err != nil {
			return workerday.WorkerDay{}, fmt.Errorf("relink draft %d: %w", old.ID, err)
		}
		return old, nil
	}

	draft := workerday.DraftOf(fact, workerday.SourceFactFromAttendance)
	if !hasOld {
		if err := s.days.Create(ctx, &draft); err != nil {
			return workerday.WorkerDay{}, fmt.Errorf("create fact draft: %w", err)
		}
		return draft, nil
	}
	draft.ID = old.ID
	draft.CreatedAt = old.CreatedAt
	if sameFact(old, draft) && workerday.EqualPtr(old.ParentWorkerDayID, draft.ParentWorkerDayID) {
		return old, nil
	}
	if err := s.days.Update(ctx, &draft); err != nil {
		return workerday.WorkerDay{}, fmt.Errorf("update fact draft %d: %w", draft.ID, err)
	}
	return draft, nil
}

func sameFact(a, b workerday.WorkerDay) bool {
	return a.Type == b.Type &&
		a.Dt.Equal(b.Dt) &&
		a.WorkHours == b.WorkHours &&
		a.Source == b.Source &&
		workerday.EqualPtr(a.ShopID, b.ShopID) &&
		workerday.EqualPtr(a.EmploymentID, b.EmploymentID) &&
		workerday.EqualPtr(a.ClosestPlanApprovedID, b.ClosestPlanApprovedID) &&
		workerday.EqualTimePtr(a.DttmWorkStart, b.DttmWorkStart) &&
		workerday.EqualTimePtr(a.DttmWorkEnd, b.DttmWorkEnd) &&
		slices.Equal(a.Details, b.Details)
}

func (s *service) scheduleTimesheets(ctx context.Context, slots []workerday.Slot) error {
	type key struct {
		employeeID int64
		month      time.Time
	}
	seen := make(map[key]bool)
	for _, slot := range slots {
		k := key{slot.EmployeeID, dates.MonthStart(slot.Dt)}
		if seen[k] {
			continue
		}
		seen[k] = true
		if err := s.tasks.Schedule(ctx, task.KindRecalcTimesheet, task.TimesheetPayload{EmployeeID: k.employeeID, Month: k.month}, nil); err != nil {
			return err
		}
	}
	return nil
}

// publishMissingScans reports past days where a planned employee never
// scanned in, and shifts that were never closed by a LEAVING scan. Event
// ids derive from the day, so reruns do not notify twice.
func (s *service) publishMissingScans(ctx context.Context, scope attendance.Scope, shifts []shift, shops *shopCache) error {
	scanned := make(map[workerday.Slot]bool, len(shifts))
	for _, sh := range shifts {
		scanned[sh.slot] = true
		if sh.checkedOut {
			continue
		}
		shop, err := shops.get(ctx, sh.shopID)
		if err != nil {
			return err
		}
		if !s.isPast(sh.slot.Dt, shop.Location()) {
			continue
		}
		if err := s.publishScanEvent(ctx, notification.CodeEmployeeNotCheckedOut, sh.slot, shop.ID, shop.NetworkID); err != nil {
			return err
		}
	}

	var q workerday.Query
	if len(scope.EmployeeDates) > 0 {
		var employees []int64
		var dts []time.Time
		for _, ed := range scope.EmployeeDates {
			employees = append(employees, ed.EmployeeID)
			dts = append(dts, ed.Dt)
		}
		q = workerday.NewQuery().ForEmployees(employees...).OnDates(dts...)
	} else {
		q = workerday.NewQuery().ForShops(scope.ShopIDs...).InRange(*scope.DtFrom, *scope.DtTo)
	}
	plans, err := s.days.List(ctx, q.Plan().Approved().Assigned().NotCanceled())
	if err != nil {
		return fmt.Errorf("load approved plans: %w", err)
	}
	for _, plan := range plans {
		slot, ok := plan.Slot()
		if !ok || !plan.Type.IsTimeRanged() || scanned[slot] || !inScope(scope, plan) {
			continue
		}
		shop, err := shops.get(ctx, *plan.ShopID)
		if err != nil {
			return err
		}
		if !s.isPast(plan.Dt, shop.Location()) {
			continue
		}
		if err := s.publishScanEvent(ctx, notification.CodeEmployeeNotCheckedIn, slot, shop.ID, shop.NetworkID); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) isPast(dt time.Time, loc *time.Location) bool {
	return dt.Before(dates.LocalDate(s.now(), loc))
}

func (s *service) publishScanEvent(ctx context.Context, code notification.Code, slot workerday.Slot, shopID, networkID int64) error {
	name := fmt.Sprintf("%s/%d/%s", code, slot.EmployeeID, dates.Format(slot.Dt))
	return s.events.Publish(ctx, notification.Event{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		NetworkID: networkID,
		Code:      code,
		ShopID:    workerday.Ptr(shopID),
		Context: map[string]any{
			"employee_id": slot.EmployeeID,
			"dt":          dates.Format(slot.Dt),
		},
	})
}
