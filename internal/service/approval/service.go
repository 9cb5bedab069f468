package approval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/approval"
	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/permission"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/metrics"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/validator"
	wdsvc "github.com/cmlabs-hris/timetable-core/internal/service/workerday"
)

type service struct {
	tx      database.Transactor
	days    workerday.Repository
	org     org.Repository
	staff   staff.Repository
	checker permission.Checker
	tasks   task.Scheduler
	events  notification.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewApprovalService(
	tx database.Transactor,
	days workerday.Repository,
	orgRepo org.Repository,
	staffRepo staff.Repository,
	checker permission.Checker,
	tasks task.Scheduler,
	events notification.Publisher,
	m *metrics.Metrics,
) approval.Service {
	return &service{
		tx:      tx,
		days:    days,
		org:     orgRepo,
		staff:   staffRepo,
		checker: checker,
		tasks:   tasks,
		events:  events,
		metrics: m,
		now:     time.Now,
	}
}

// Approve promotes the drafts in scope that differ from their approved
// counterparts and removes the approved rows they replace. The whole call
// commits or rolls back as one.
func (s *service) Approve(ctx context.Context, req approval.Request) (approval.Result, error) {
	if err := validateRange(req.DtFrom, req.DtTo); err != nil {
		return approval.Result{}, err
	}
	sess, err := s.checker.ForUser(ctx, req.UserID)
	if err != nil {
		return approval.Result{}, err
	}
	graph := workerday.GraphOf(req.IsFact)

	var result approval.Result
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		drafts, approved, err := s.scope(ctx, req)
		if err != nil {
			return err
		}
		if !req.IsFact {
			drafts = dropShadowedHolidays(drafts)
		}
		toApprove, toDelete := symmetricDiff(drafts, approved)
		if len(toApprove) == 0 && len(toDelete) == 0 {
			return nil
		}

		notFirst, err := s.authorize(ctx, sess, toApprove, toDelete, approved)
		if err != nil {
			return err
		}

		result, err = s.apply(ctx, req, toApprove, toDelete)
		if err != nil {
			return err
		}
		return s.afterApprove(ctx, sess, req, toApprove, toDelete, notFirst, result)
	})
	if err != nil {
		s.metrics.Approval(string(graph), "failed", 0)
		return approval.Result{}, err
	}
	if result.Affected() == 0 {
		s.metrics.Approval(string(graph), "nothing", 0)
		slog.Debug("Nothing to approve", "user_id", req.UserID, "graph", graph,
			"dt_from", dates.Format(req.DtFrom), "dt_to", dates.Format(req.DtTo))
		return result, nil
	}

	s.metrics.Approval(string(graph), "approved", result.Affected())
	slog.Info("Worker days approved", "user_id", req.UserID, "graph", graph,
		"dt_from", dates.Format(req.DtFrom), "dt_to", dates.Format(req.DtTo),
		"approved", len(result.Approved), "deleted", len(result.Deleted))
	return result, nil
}

// RequestApprove asks the approvers of the shop's network to look at a range.
func (s *service) RequestApprove(ctx context.Context, req approval.RequestApproveRequest) error {
	if err := validateRange(req.DtFrom, req.DtTo); err != nil {
		return err
	}
	sess, err := s.checker.ForUser(ctx, req.UserID)
	if err != nil {
		return err
	}
	shop, err := s.org.GetShop(ctx, req.ShopID)
	if err != nil {
		return err
	}
	if sess.NetworkID() != 0 && sess.NetworkID() != shop.NetworkID {
		return workerday.PermissionDenied("shop %d belongs to another network", shop.ID)
	}

	return s.events.Publish(ctx, notification.Event{
		NetworkID: shop.NetworkID,
		Code:      notification.CodeRequestApprove,
		AuthorID:  userRef(req.UserID),
		ShopID:    &shop.ID,
		Context: map[string]any{
			"shop_id": shop.ID,
			"dt_from": dates.Format(req.DtFrom),
			"dt_to":   dates.Format(req.DtTo),
			"is_fact": req.IsFact,
		},
	})
}

// scope loads and locks the draft and approved rows an approve call covers.
// With a shop, rows without one (dayoffs) count when their employee is
// employed in the shop during the range. Open vacancies take part only as
// drafts and only when asked for; approved ones belong to the vacancy engine.
// Types narrow the drafts. An approved row stays in scope when a selected
// draft shares its slot, whatever its type, and drops out when an unselected
// draft does.
func (s *service) scope(ctx context.Context, req approval.Request) (drafts, approved []workerday.WorkerDay, err error) {
	q := workerday.NewQuery().
		InRange(req.DtFrom, req.DtTo).
		Graph(workerday.GraphOf(req.IsFact)).
		NotCanceled()
	if len(req.EmployeeIDs) > 0 {
		q = q.ForEmployees(req.EmployeeIDs...)
	}
	rows, err := s.days.ListForUpdate(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("load worker days: %w", err)
	}

	var members map[int64]bool
	if req.ShopID != nil {
		employments, err := s.staff.ListEmployments(ctx, staff.EmploymentFilter{
			ShopIDs: []int64{*req.ShopID},
			DtFrom:  &req.DtFrom,
			DtTo:    &req.DtTo,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("load employments of shop %d: %w", *req.ShopID, err)
		}
		members = make(map[int64]bool, len(employments))
		for _, e := range employments {
			members[e.EmployeeID] = true
		}
	}

	for _, wd := range rows {
		if wd.EmployeeID == nil && (wd.IsApproved || !req.ApproveOpenVacancies) {
			continue
		}
		if req.ShopID != nil {
			if wd.ShopID != nil && *wd.ShopID != *req.ShopID {
				continue
			}
			if wd.ShopID == nil && (wd.EmployeeID == nil || !members[*wd.EmployeeID]) {
				continue
			}
		}
		if wd.IsApproved {
			approved = append(approved, wd)
		} else {
			drafts = append(drafts, wd)
		}
	}
	if len(req.WDTypes) == 0 {
		return drafts, approved, nil
	}

	selected, skipped := wdsvc.SlotSet{}, wdsvc.SlotSet{}
	drafts = slices.DeleteFunc(drafts, func(wd workerday.WorkerDay) bool {
		if slices.Contains(req.WDTypes, wd.Type) {
			selected.Add(wd)
			return false
		}
		skipped.Add(wd)
		return true
	})
	approved = slices.DeleteFunc(approved, func(wd workerday.WorkerDay) bool {
		slot, _ := wd.Slot()
		if _, ok := selected[slot]; ok {
			return false
		}
		if _, ok := skipped[slot]; ok {
			return true
		}
		return !slices.Contains(req.WDTypes, wd.Type)
	})
	return drafts, approved, nil
}

// authorize checks APPROVE on every touched row and the protected-day flag.
// It returns the slots approved for the first time by a permission that does
// not allow it.
func (s *service) authorize(ctx context.Context, sess permission.Session, toApprove, toDelete, approved []workerday.WorkerDay) ([]workerday.Slot, error) {
	prior := wdsvc.SlotSet{}
	prior.Add(approved...)

	notFirst := wdsvc.SlotSet{}
	check := func(wd workerday.WorkerDay) error {
		if wd.IsBlocked && !sess.CanChangeProtected() {
			return workerday.PermissionDenied("worker day %d is protected", wd.ID)
		}
		req := permission.RequestFor(permission.ActionApprove, wd)
		req.SkipEmploymentCheck = true
		perm, err := sess.Check(ctx, req)
		if err != nil {
			return err
		}
		if slot, ok := wd.Slot(); ok && !perm.AllowApproveFirst {
			if _, seen := prior[slot]; !seen {
				notFirst[slot] = struct{}{}
			}
		}
		return nil
	}

	for _, wd := range toApprove {
		if err := check(wd); err != nil {
			return nil, err
		}
	}
	for _, wd := range toDelete {
		if err := check(wd); err != nil {
			return nil, err
		}
	}
	return notFirst.Slots(), nil
}

// apply removes the replaced approved rows, promotes the drafts and gives
// each promoted row a fresh draft twin. The projected rows are checked
// before the first write, the touched slots again after the last one.
func (s *service) apply(ctx context.Context, req approval.Request, toApprove, toDelete []workerday.WorkerDay) (approval.Result, error) {
	var result approval.Result
	touched := wdsvc.SlotSet{}
	touched.Add(toApprove...)
	touched.Add(toDelete...)

	for _, wd := range toDelete {
		result.Deleted = append(result.Deleted, wd.ID)
	}
	if !req.IsFact && len(result.Deleted) > 0 {
		facts, err := s.days.ListForUpdate(ctx, workerday.NewQuery().
			Fact().
			WithClosestPlan(result.Deleted...).
			NotManuallyEdited())
		if err != nil {
			return result, fmt.Errorf("load facts of replaced plans: %w", err)
		}
		for _, f := range facts {
			result.Deleted = append(result.Deleted, f.ID)
		}
		touched.Add(facts...)
	}

	promoted := make([]workerday.WorkerDay, 0, len(toApprove))
	projected := make([]workerday.WorkerDay, 0, 2*len(toApprove))
	for _, d := range toApprove {
		wd := d.Clone()
		wd.IsApproved = true
		wd.ParentWorkerDayID = nil
		promoted = append(promoted, wd)
		projected = append(projected, wd, workerday.DraftOf(wd, workerday.SourceOnApprove))
	}
	if err := wdsvc.Preflight(ctx, s.days, projected, result.Deleted); err != nil {
		return result, err
	}

	if err := s.days.Delete(ctx, result.Deleted); err != nil {
		return result, fmt.Errorf("delete replaced worker days: %w", err)
	}
	for _, wd := range promoted {
		if err := s.days.Update(ctx, &wd); err != nil {
			return result, fmt.Errorf("approve worker day %d: %w", wd.ID, err)
		}
		twin := workerday.DraftOf(wd, workerday.SourceOnApprove)
		if err := s.days.Create(ctx, &twin); err != nil {
			return result, fmt.Errorf("create draft of worker day %d: %w", wd.ID, err)
		}
		result.Approved = append(result.Approved, wd.ID)
	}

	if err := wdsvc.Verify(ctx, s.days, touched.Slots()); err != nil {
		return result, err
	}
	return result, nil
}

// afterApprove records the month as published and queues the follow-up
// work. Everything it schedules runs only once the approval commits.
func (s *service) afterApprove(
	ctx context.Context,
	sess permission.Session,
	req approval.Request,
	toApprove, toDelete []workerday.WorkerDay,
	notFirst []workerday.Slot,
	result approval.Result,
) error {
	touched := slices.Concat(toApprove, toDelete)
	networkID, err := s.networkOf(ctx, sess, req, touched)
	if err != nil {
		return err
	}
	network, err := s.org.GetNetwork(ctx, networkID)
	if err != nil {
		return err
	}

	recalcManual := !req.IsFact && network.Settings.RecalcFactWorkHoursOnApprove
	if err := wdsvc.ScheduleRelink(ctx, s.tasks, touched, recalcManual); err != nil {
		return err
	}

	if req.IsFact {
		if err := s.scheduleTimesheets(ctx, touched); err != nil {
			return err
		}
	} else {
		shopIDs := shopsOf(req, touched)
		if err := s.markPublished(ctx, shopIDs, req.DtFrom, req.DtTo); err != nil {
			return err
		}
		if err := s.scheduleReconcile(ctx, touched); err != nil {
			return err
		}
		for _, shopID := range shopIDs {
			if err := s.tasks.Schedule(ctx, task.KindVacancyScan, task.VacancyScanPayload{
				ShopID: shopID,
				DtFrom: req.DtFrom,
				DtTo:   req.DtTo,
			}, nil); err != nil {
				return err
			}
		}
	}

	author := userRef(req.UserID)
	for _, slot := range notFirst {
		if err := s.events.Publish(ctx, notification.Event{
			NetworkID: networkID,
			Code:      notification.CodeApprovedNotFirst,
			AuthorID:  author,
			ShopID:    req.ShopID,
			Context: map[string]any{
				"employee_id": slot.EmployeeID,
				"dt":          dates.Format(slot.Dt),
				"is_fact":     slot.IsFact,
			},
		}); err != nil {
			return err
		}
	}

	payload := map[string]any{
		"is_fact":  req.IsFact,
		"dt_from":  dates.Format(req.DtFrom),
		"dt_to":    dates.Format(req.DtTo),
		"approved": len(result.Approved),
		"deleted":  len(result.Deleted),
	}
	if req.ShopID != nil {
		payload["shop_id"] = *req.ShopID
	}
	return s.events.Publish(ctx, notification.Event{
		NetworkID: networkID,
		Code:      notification.CodeApprove,
		AuthorID:  author,
		ShopID:    req.ShopID,
		Context:   payload,
	})
}

// markPublished flags every month of [dtFrom, dtTo] as approved for shops.
func (s *service) markPublished(ctx context.Context, shopIDs []int64, dtFrom, dtTo time.Time) error {
	at := s.now()
	for _, shopID := range shopIDs {
		for month := dates.MonthStart(dtFrom); !month.After(dtTo); month = month.AddDate(0, 1, 0) {
			if err := s.org.MarkShopMonthApproved(ctx, shopID, month, at); err != nil {
				return fmt.Errorf("mark shop %d month %s approved: %w", shopID, month.Format("2006-01"), err)
			}
		}
	}
	return nil
}

// scheduleReconcile re-materializes facts for the touched employee dates
// that are no longer in the future.
func (s *service) scheduleReconcile(ctx context.Context, rows []workerday.WorkerDay) error {
	today := dates.Truncate(s.now())
	seen := wdsvc.SlotSet{}
	for _, wd := range rows {
		if !wd.Dt.After(today) {
			seen.Add(wd)
		}
	}
	if len(seen) == 0 {
		return nil
	}

	var pairs []task.EmployeeDate
	for _, slot := range seen.Slots() {
		pairs = append(pairs, task.EmployeeDate{EmployeeID: slot.EmployeeID, Dt: slot.Dt})
	}
	pairs = slices.CompactFunc(pairs, func(a, b task.EmployeeDate) bool {
		return a.EmployeeID == b.EmployeeID && a.Dt.Equal(b.Dt)
	})
	return s.tasks.Schedule(ctx, task.KindReconcileFact, task.ReconcilePayload{EmployeeDates: pairs}, nil)
}

// scheduleTimesheets queues one recalculation per touched employee month.
func (s *service) scheduleTimesheets(ctx context.Context, rows []workerday.WorkerDay) error {
	type employeeMonth struct {
		employeeID int64
		month      time.Time
	}
	var keys []employeeMonth
	seen := make(map[employeeMonth]bool)
	for _, wd := range rows {
		if wd.EmployeeID == nil {
			continue
		}
		k := employeeMonth{*wd.EmployeeID, dates.MonthStart(wd.Dt)}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		if err := s.tasks.Schedule(ctx, task.KindRecalcTimesheet, task.TimesheetPayload{
			EmployeeID: k.employeeID,
			Month:      k.month,
		}, nil); err != nil {
			return err
		}
	}
	return nil
}

// networkOf prefers the caller's network; system calls take it from the shop.
func (s *service) networkOf(ctx context.Context, sess permission.Session, req approval.Request, rows []workerday.WorkerDay) (int64, error) {
	if id := sess.NetworkID(); id != 0 {
		return id, nil
	}
	shopIDs := shopsOf(req, rows)
	if len(shopIDs) == 0 {
		for _, wd := range rows {
			if wd.EmployeeID == nil {
				continue
			}
			emp, err := s.staff.GetEmployee(ctx, *wd.EmployeeID)
			if err != nil {
				return 0, err
			}
			user, err := s.staff.GetUser(ctx, emp.UserID)
			if err != nil {
				return 0, err
			}
			return user.NetworkID, nil
		}
		return 0, workerday.InvariantViolation("cannot resolve the network of the approved rows")
	}
	shop, err := s.org.GetShop(ctx, shopIDs[0])
	if err != nil {
		return 0, err
	}
	return shop.NetworkID, nil
}

// shopsOf returns the requested shop, or the shops of the time-ranged rows.
func shopsOf(req approval.Request, rows []workerday.WorkerDay) []int64 {
	if req.ShopID != nil {
		return []int64{*req.ShopID}
	}
	var ids []int64
	for _, wd := range rows {
		if wd.ShopID != nil {
			ids = append(ids, *wd.ShopID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func validateRange(from, to time.Time) error {
	var errs validator.ValidationErrors
	if from.IsZero() {
		errs.Add("dt_from", "is required")
	}
	if to.IsZero() {
		errs.Add("dt_to", "is required")
	} else if to.Before(from) {
		errs.Add("dt_to", "must not be before dt_from")
	}
	return errs.Err()
}

func userRef(userID int64) *int64 {
	if userID == 0 {
		return nil
	}
	return workerday.Ptr(userID)
}
