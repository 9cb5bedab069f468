package workerday

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/permission"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

func (s *service) BatchUpdateOrCreate(ctx context.Context, userID int64, req workerday.BatchRequest) (workerday.BatchResult, error) {
	for i, in := range req.Rows {
		if err := in.Validate(); err != nil {
			return workerday.BatchResult{}, fmt.Errorf("row %d: %w", i, err)
		}
	}
	sess, err := s.checker.ForUser(ctx, userID)
	if err != nil {
		return workerday.BatchResult{}, err
	}

	var result workerday.BatchResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		result = workerday.BatchResult{}
		touched := SlotSet{}

		keep := make(map[int64]bool)
		for _, in := range req.Rows {
			if in.ID != 0 {
				keep[in.ID] = true
			}
		}
		if req.DeleteScope != nil {
			existing, err := s.repo.ListForUpdate(ctx, *req.DeleteScope)
			if err != nil {
				return fmt.Errorf("load delete scope: %w", err)
			}
			var doomed []workerday.WorkerDay
			for _, wd := range existing {
				if !keep[wd.ID] {
					doomed = append(doomed, wd)
				}
			}
			if err := s.deleteRows(ctx, sess, doomed); err != nil {
				return err
			}
			touched.Add(doomed...)
			for _, wd := range doomed {
				result.Deleted = append(result.Deleted, wd.ID)
			}
		}

		for _, in := range req.Rows {
			if in.ID != 0 {
				old, wd, err := s.updateDraft(ctx, sess, in.ID, in)
				if err != nil {
					return err
				}
				touched.Add(old, wd)
				result.Updated = append(result.Updated, wd)
				continue
			}
			wd, err := s.createDraft(ctx, sess, in, workerday.SourceChangeList)
			if err != nil {
				return err
			}
			touched.Add(wd)
			result.Created = append(result.Created, wd)
		}

		return Verify(ctx, s.repo, touched.Slots())
	})
	if err != nil {
		return workerday.BatchResult{}, err
	}
	return result, nil
}

// CopyApproved gives every approved row in the range that has no draft a
// draft twin.
func (s *service) CopyApproved(ctx context.Context, userID int64, req workerday.CopyApprovedRequest) (int, error) {
	sess, err := s.checker.ForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	q := workerday.NewQuery().InRange(req.DtFrom, req.DtTo).Graph(workerday.GraphOf(req.IsFact)).Assigned()
	if len(req.EmployeeIDs) > 0 {
		q = q.ForEmployees(req.EmployeeIDs...)
	}
	if req.ShopID != nil {
		q = q.ForShops(*req.ShopID)
	}

	copied := 0
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		copied = 0
		approved, err := s.repo.ListForUpdate(ctx, q.Approved())
		if err != nil {
			return fmt.Errorf("load approved rows: %w", err)
		}
		if len(approved) == 0 {
			return nil
		}

		var employees []int64
		for _, wd := range approved {
			employees = append(employees, *wd.EmployeeID)
		}
		drafts, err := s.repo.List(ctx, workerday.NewQuery().
			ForEmployees(employees...).
			InRange(req.DtFrom, req.DtTo).
			Graph(workerday.GraphOf(req.IsFact)).
			Draft())
		if err != nil {
			return fmt.Errorf("load drafts: %w", err)
		}
		hasDraft := SlotSet{}
		hasDraft.Add(drafts...)

		touched := SlotSet{}
		for _, a := range approved {
			slot, _ := a.Slot()
			if _, ok := hasDraft[slot]; ok {
				continue
			}
			d := workerday.DraftOf(a, workerday.SourceCopyApproved)
			if err := s.authorize(ctx, sess, permission.ActionCreate, d, true); err != nil {
				return err
			}
			d.CreatedByID = userRef(sess.UserID())
			if err := s.repo.Create(ctx, &d); err != nil {
				return fmt.Errorf("copy worker day %d: %w", a.ID, err)
			}
			hasDraft[slot] = struct{}{}
			touched.Add(d)
			copied++
		}
		return Verify(ctx, s.repo, touched.Slots())
	})
	if err != nil {
		return 0, err
	}
	return copied, nil
}

// Duplicate copies rows as drafts onto target dates, replacing the drafts
// already there. Shift times move by whole days with the date.
func (s *service) Duplicate(ctx context.Context, userID int64, req workerday.DuplicateRequest) ([]workerday.WorkerDay, error) {
	if len(req.WorkerDayIDs) == 0 || len(req.TargetDates) == 0 {
		return nil, nil
	}
	sess, err := s.checker.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var created []workerday.WorkerDay
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created = nil
		sources, err := s.repo.List(ctx, workerday.NewQuery().ByIDs(req.WorkerDayIDs...))
		if err != nil {
			return fmt.Errorf("load source rows: %w", err)
		}
		if len(sources) == 0 {
			return workerday.ErrWorkerDayNotFound
		}

		touched := SlotSet{}
		for _, src := range sources {
			for _, dt := range req.TargetDates {
				d := duplicateOf(src, dt, req.ToEmployeeID)
				if err := s.authorize(ctx, sess, permission.ActionCreate, d, false); err != nil {
					return err
				}
				if d.EmployeeID != nil {
					existing, err := s.repo.ListForUpdate(ctx, workerday.NewQuery().
						ForEmployees(*d.EmployeeID).
						OnDates(dt).
						Graph(workerday.GraphOf(d.IsFact)).
						Draft())
					if err != nil {
						return fmt.Errorf("load target drafts: %w", err)
					}
					if err := s.deleteRows(ctx, sess, existing); err != nil {
						return err
					}
				}
				if err := s.attachParent(ctx, sess, &d); err != nil {
					return err
				}
				d.CreatedByID = userRef(sess.UserID())
				d.LastEditedByID = userRef(sess.UserID())
				if err := s.prepare(ctx, &d, true); err != nil {
					return err
				}
				if err := s.repo.Create(ctx, &d); err != nil {
					return fmt.Errorf("duplicate worker day %d: %w", src.ID, err)
				}
				touched.Add(d)
				created = append(created, d)
			}
		}
		return Verify(ctx, s.repo, touched.Slots())
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func duplicateOf(src workerday.WorkerDay, dt time.Time, toEmployee *int64) workerday.WorkerDay {
	d := src.Clone()
	shift := dt.Sub(src.Dt)
	d.ID = 0
	d.Dt = dt
	d.IsApproved = false
	d.IsBlocked = false
	d.Canceled = false
	d.ParentWorkerDayID = nil
	d.ClosestPlanApprovedID = nil
	d.Source = workerday.SourceDuplicate
	if d.DttmWorkStart != nil {
		d.DttmWorkStart = workerday.Ptr(d.DttmWorkStart.Add(shift))
		d.DttmWorkEnd = workerday.Ptr(d.DttmWorkEnd.Add(shift))
	}
	if toEmployee != nil && !workerday.EqualPtr(toEmployee, src.EmployeeID) {
		d.EmployeeID = workerday.Ptr(*toEmployee)
		d.EmploymentID = nil
	}
	if !dt.Equal(src.Dt) {
		d.EmploymentID = nil
	}
	d.CreatedAt, d.UpdatedAt = time.Time{}, time.Time{}
	return d
}
