package workerday

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/permission"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

type service struct {
	tx      database.Transactor
	repo    workerday.Repository
	checker permission.Checker
	tasks   task.Scheduler
	hours   *HoursCalculator
	linker  *Linker
}

func NewWorkerDayService(
	tx database.Transactor,
	repo workerday.Repository,
	orgRepo org.Repository,
	staffRepo staff.Repository,
	checker permission.Checker,
	tasks task.Scheduler,
) workerday.Service {
	hours := NewHoursCalculator(orgRepo, staffRepo)
	return &service{
		tx:      tx,
		repo:    repo,
		checker: checker,
		tasks:   tasks,
		hours:   hours,
		linker:  NewLinker(repo, orgRepo, hours),
	}
}

func (s *service) Get(ctx context.Context, employeeID int64, dt time.Time, isFact, isApproved bool) (*workerday.WorkerDay, error) {
	q := workerday.NewQuery().ForEmployees(employeeID).OnDates(dt).Graph(workerday.GraphOf(isFact))
	if isApproved {
		q = q.Approved()
	} else {
		q = q.Draft()
	}
	rows, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *service) List(ctx context.Context, q workerday.Query) ([]workerday.WorkerDay, error) {
	return s.repo.List(ctx, q)
}

func (s *service) Create(ctx context.Context, userID int64, in workerday.Input) (workerday.WorkerDay, error) {
	if err := in.Validate(); err != nil {
		return workerday.WorkerDay{}, err
	}
	sess, err := s.checker.ForUser(ctx, userID)
	if err != nil {
		return workerday.WorkerDay{}, err
	}

	var created workerday.WorkerDay
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		wd, err := s.createDraft(ctx, sess, in, workerday.SourceManual)
		if err != nil {
			return err
		}
		touched := SlotSet{}
		touched.Add(wd)
		if err := Verify(ctx, s.repo, touched.Slots()); err != nil {
			return err
		}
		created = wd
		return nil
	})
	if err != nil {
		return workerday.WorkerDay{}, err
	}
	return created, nil
}

func (s *service) Update(ctx context.Context, userID int64, id int64, in workerday.Input) (workerday.WorkerDay, error) {
	if err := in.Validate(); err != nil {
		return workerday.WorkerDay{}, err
	}
	sess, err := s.checker.ForUser(ctx, userID)
	if err != nil {
		return workerday.WorkerDay{}, err
	}

	var updated workerday.WorkerDay
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		old, wd, err := s.updateDraft(ctx, sess, id, in)
		if err != nil {
			return err
		}
		touched := SlotSet{}
		touched.Add(old, wd)
		if err := Verify(ctx, s.repo, touched.Slots()); err != nil {
			return err
		}
		updated = wd
		return nil
	})
	if err != nil {
		return workerday.WorkerDay{}, err
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, userID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	sess, err := s.checker.ForUser(ctx, userID)
	if err != nil {
		return err
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		rows, err := s.repo.ListForUpdate(ctx, workerday.NewQuery().ByIDs(ids...))
		if err != nil {
			return fmt.Errorf("load worker days: %w", err)
		}
		if len(rows) != len(slices.Compact(sortedCopy(ids))) {
			return workerday.ErrWorkerDayNotFound
		}
		return s.deleteRows(ctx, sess, rows)
	})
}

func (s *service) SetBlocked(ctx context.Context, userID int64, ids []int64, blocked bool) error {
	sess, err := s.checker.ForUser(ctx, userID)
	if err != nil {
		return err
	}
	if !sess.CanChangeProtected() {
		return workerday.PermissionDenied("user %d may not change protected days", userID)
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.SetBlocked(ctx, ids, blocked)
	})
}

// createDraft authorizes and inserts a draft built from in.
func (s *service) createDraft(ctx context.Context, sess permission.Session, in workerday.Input, source workerday.Source) (workerday.WorkerDay, error) {
	wd := workerday.WorkerDay{Source: source}
	in.Apply(&wd)

	if err := s.authorize(ctx, sess, permission.ActionCreate, wd, in.SkipEmploymentCheck); err != nil {
		return workerday.WorkerDay{}, err
	}
	if err := s.attachParent(ctx, sess, &wd); err != nil {
		return workerday.WorkerDay{}, err
	}
	wd.CreatedByID = userRef(sess.UserID())
	wd.LastEditedByID = userRef(sess.UserID())

	if err := s.prepare(ctx, &wd, true); err != nil {
		return workerday.WorkerDay{}, err
	}
	if err := Preflight(ctx, s.repo, []workerday.WorkerDay{wd}, nil); err != nil {
		return workerday.WorkerDay{}, err
	}
	if err := s.repo.Create(ctx, &wd); err != nil {
		return workerday.WorkerDay{}, fmt.Errorf("create worker day: %w", err)
	}
	return wd, nil
}

// updateDraft applies in to the draft id and returns the row before and
// after the change.
func (s *service) updateDraft(ctx context.Context, sess permission.Session, id int64, in workerday.Input) (workerday.WorkerDay, workerday.WorkerDay, error) {
	rows, err := s.repo.ListForUpdate(ctx, workerday.NewQuery().ByIDs(id))
	if err != nil {
		return workerday.WorkerDay{}, workerday.WorkerDay{}, fmt.Errorf("load worker day %d: %w", id, err)
	}
	if len(rows) == 0 {
		return workerday.WorkerDay{}, workerday.WorkerDay{}, workerday.ErrWorkerDayNotFound
	}
	old := rows[0]
	if old.IsApproved {
		return old, old, workerday.InvariantViolation("worker day %d is approved; edit its draft instead", id)
	}
	if err := guardBlocked(sess, old); err != nil {
		return old, old, err
	}
	if err := s.authorize(ctx, sess, permission.ActionUpdate, old, in.SkipEmploymentCheck); err != nil {
		return old, old, err
	}

	wd := old.Clone()
	in.Apply(&wd)
	if !workerday.EqualPtr(old.EmployeeID, wd.EmployeeID) && in.EmploymentID == nil {
		wd.EmploymentID = nil
	} else if in.EmploymentID == nil {
		wd.EmploymentID = old.EmploymentID
	}

	slotChanged := !workerday.EqualPtr(old.EmployeeID, wd.EmployeeID) || !old.Dt.Equal(wd.Dt) || old.IsFact != wd.IsFact
	if slotChanged || old.Type != wd.Type || !workerday.EqualPtr(old.ShopID, wd.ShopID) {
		if err := s.authorize(ctx, sess, permission.ActionUpdate, wd, in.SkipEmploymentCheck); err != nil {
			return old, old, err
		}
	}
	if slotChanged {
		wd.ParentWorkerDayID = nil
		if err := s.attachParent(ctx, sess, &wd); err != nil {
			return old, old, err
		}
	}
	wd.LastEditedByID = userRef(sess.UserID())

	if err := s.prepare(ctx, &wd, hoursInputsChanged(old, wd)); err != nil {
		return old, old, err
	}
	if err := Preflight(ctx, s.repo, []workerday.WorkerDay{wd}, nil); err != nil {
		return old, old, err
	}
	if err := s.repo.Update(ctx, &wd); err != nil {
		return old, old, fmt.Errorf("update worker day %d: %w", id, err)
	}
	return old, wd, nil
}

func (s *service) deleteRows(ctx context.Context, sess permission.Session, rows []workerday.WorkerDay) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(rows))
	var relink []workerday.WorkerDay
	for _, wd := range rows {
		if err := guardBlocked(sess, wd); err != nil {
			return err
		}
		if err := s.authorize(ctx, sess, permission.ActionDelete, wd, true); err != nil {
			return err
		}
		ids = append(ids, wd.ID)
		if wd.IsApproved && !wd.IsFact && wd.EmployeeID != nil {
			relink = append(relink, wd)
		}
	}
	if err := s.repo.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete worker days: %w", err)
	}
	return ScheduleRelink(ctx, s.tasks, relink, false)
}

// prepare fills derived fields and checks the row on its own.
func (s *service) prepare(ctx context.Context, wd *workerday.WorkerDay, recalc bool) error {
	if recalc || wd.EmploymentID == nil {
		if err := s.hours.Fill(ctx, wd); err != nil {
			return err
		}
	}
	if wd.IsFact {
		if _, err := s.linker.Pair(ctx, wd); err != nil {
			return err
		}
	}
	return wd.CheckShape()
}

// attachParent links a draft to the approved row of its slot. Drafts of a
// protected approved row need the change-protected flag.
func (s *service) attachParent(ctx context.Context, sess permission.Session, wd *workerday.WorkerDay) error {
	if wd.EmployeeID == nil || wd.IsApproved {
		return nil
	}
	approved, err := s.repo.List(ctx, workerday.NewQuery().
		ForEmployees(*wd.EmployeeID).
		OnDates(wd.Dt).
		Graph(workerday.GraphOf(wd.IsFact)).
		Approved())
	if err != nil {
		return fmt.Errorf("load approved twin: %w", err)
	}
	if len(approved) == 0 {
		return nil
	}
	for _, a := range approved {
		if err := guardBlocked(sess, a); err != nil {
			return err
		}
	}
	wd.ParentWorkerDayID = workerday.Ptr(approved[0].ID)
	return nil
}

func (s *service) authorize(ctx context.Context, sess permission.Session, action permission.Action, wd workerday.WorkerDay, skipEmployment bool) error {
	req := permission.RequestFor(action, wd)
	req.SkipEmploymentCheck = skipEmployment
	_, err := sess.Check(ctx, req)
	return err
}

func guardBlocked(sess permission.Session, wd workerday.WorkerDay) error {
	if wd.IsBlocked && !sess.CanChangeProtected() {
		return workerday.PermissionDenied("worker day %d is protected", wd.ID)
	}
	return nil
}

func hoursInputsChanged(old, wd workerday.WorkerDay) bool {
	return old.Type != wd.Type ||
		!workerday.EqualTimePtr(old.DttmWorkStart, wd.DttmWorkStart) ||
		!workerday.EqualTimePtr(old.DttmWorkEnd, wd.DttmWorkEnd) ||
		!workerday.EqualPtr(old.ShopID, wd.ShopID) ||
		!workerday.EqualPtr(old.EmploymentID, wd.EmploymentID) ||
		!slices.Equal(old.Details, wd.Details)
}

// ScheduleRelink enqueues a closest-plan refresh for the employees and
// dates of rows, widened by a day on each side.
func ScheduleRelink(ctx context.Context, tasks task.Scheduler, rows []workerday.WorkerDay, recalcManual bool) error {
	var (
		employees []int64
		from, to  time.Time
	)
	for _, wd := range rows {
		if wd.EmployeeID == nil {
			continue
		}
		employees = append(employees, *wd.EmployeeID)
		if from.IsZero() || wd.Dt.Before(from) {
			from = wd.Dt
		}
		if to.IsZero() || wd.Dt.After(to) {
			to = wd.Dt
		}
	}
	if len(employees) == 0 {
		return nil
	}
	slices.Sort(employees)
	return tasks.Schedule(ctx, task.KindRelinkClosestPlan, task.RelinkPayload{
		EmployeeIDs:  slices.Compact(employees),
		DtFrom:       from.AddDate(0, 0, -1),
		DtTo:         to.AddDate(0, 0, 1),
		RecalcManual: recalcManual,
	}, nil)
}

func userRef(userID int64) *int64 {
	if userID == 0 {
		return nil
	}
	return workerday.Ptr(userID)
}

func sortedCopy(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}
