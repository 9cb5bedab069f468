package vacancy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/vacancy"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	wdsvc "github.com/cmlabs-hris/timetable-core/internal/service/workerday"
)

func (s *service) Confirm(ctx context.Context, req vacancy.ConfirmRequest) (workerday.WorkerDay, error) {
	var v workerday.WorkerDay
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.confirm(ctx, req, "")
		return err
	})
	if err != nil {
		return workerday.WorkerDay{}, err
	}
	source := req.Source
	if source == "" {
		source = workerday.SourceManual
	}
	s.metrics.VacancyConfirmed(string(source))
	return v, nil
}

// confirm assigns the vacancy inside the caller's transaction. extra, when
// set, is published alongside the confirmation event.
func (s *service) confirm(ctx context.Context, req vacancy.ConfirmRequest, extra notification.Code) (workerday.WorkerDay, error) {
	v, shop, err := s.lockVacancy(ctx, req.VacancyID)
	if err != nil {
		return workerday.WorkerDay{}, err
	}

	employee, err := s.staff.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return workerday.WorkerDay{}, fmt.Errorf("load employee %d: %w", req.EmployeeID, err)
	}
	user, err := s.staff.GetUser(ctx, employee.UserID)
	if err != nil {
		return workerday.WorkerDay{}, fmt.Errorf("load user %d: %w", employee.UserID, err)
	}
	if err := s.checkBlacklist(ctx, user, shop); err != nil {
		return workerday.WorkerDay{}, err
	}

	var prior *int64
	if v.EmployeeID != nil {
		if *v.EmployeeID == req.EmployeeID {
			return v, nil
		}
		if !req.Reconfirm {
			return workerday.WorkerDay{}, workerday.VacancyUnavailable("vacancy %d is already taken", v.ID)
		}
		facts, err := s.days.List(ctx, workerday.NewQuery().ForEmployees(*v.EmployeeID).OnDates(v.Dt).Fact().Approved())
		if err != nil {
			return workerday.WorkerDay{}, fmt.Errorf("load facts of employee %d: %w", *v.EmployeeID, err)
		}
		if len(facts) > 0 {
			return workerday.WorkerDay{}, workerday.VacancyUnavailable("employee %d already worked vacancy %d", *v.EmployeeID, v.ID)
		}
		prior = workerday.Ptr(*v.EmployeeID)
	}

	employment, err := s.pickEmployment(ctx, req.EmployeeID, v)
	if err != nil {
		return workerday.WorkerDay{}, err
	}
	if err := s.checkEligible(ctx, user, shop, v); err != nil {
		return workerday.WorkerDay{}, err
	}
	if err := s.checkPublished(ctx, employment, shop, v.Dt); err != nil {
		return workerday.WorkerDay{}, err
	}
	if err := s.clearDay(ctx, req.EmployeeID, v, req.Exchange); err != nil {
		return workerday.WorkerDay{}, err
	}

	if err := s.dropDrafts(ctx, v.ID); err != nil {
		return workerday.WorkerDay{}, err
	}
	v.EmployeeID = workerday.Ptr(req.EmployeeID)
	v.EmploymentID = workerday.Ptr(employment.ID)
	if err := s.hours.Fill(ctx, &v); err != nil {
		return workerday.WorkerDay{}, err
	}
	if err := s.days.Update(ctx, &v); err != nil {
		return workerday.WorkerDay{}, fmt.Errorf("assign vacancy %d: %w", v.ID, err)
	}
	source := req.Source
	if source == "" {
		source = workerday.SourceManual
	}
	draft := workerday.DraftOf(v, source)
	if err := s.days.Create(ctx, &draft); err != nil {
		return workerday.WorkerDay{}, fmt.Errorf("create draft of vacancy %d: %w", v.ID, err)
	}

	slots := []workerday.Slot{{EmployeeID: req.EmployeeID, Dt: v.Dt}}
	touched := []workerday.WorkerDay{v}
	if prior != nil {
		if err := s.giveHoliday(ctx, *prior, v.Dt, workerday.SourceOnCancelVacancy); err != nil {
			return workerday.WorkerDay{}, err
		}
		slots = append(slots, workerday.Slot{EmployeeID: *prior, Dt: v.Dt})
		touched = append(touched, workerday.WorkerDay{EmployeeID: prior, Dt: v.Dt})
	}
	if err := wdsvc.Verify(ctx, s.days, slots); err != nil {
		return workerday.WorkerDay{}, err
	}
	if err := wdsvc.ScheduleRelink(ctx, s.tasks, touched, false); err != nil {
		return workerday.WorkerDay{}, err
	}

	code := notification.CodeVacancyConfirmed
	if prior != nil {
		code = notification.CodeVacancyReconfirmed
	}
	author := userRef(req.UserID)
	if err := s.publish(ctx, code, v, shop.NetworkID, author, v.EmployeeID); err != nil {
		return workerday.WorkerDay{}, err
	}
	if extra != "" {
		if err := s.publish(ctx, extra, v, shop.NetworkID, author, v.EmployeeID); err != nil {
			return workerday.WorkerDay{}, err
		}
	}
	return v, nil
}

func (s *service) Refuse(ctx context.Context, req vacancy.RefuseRequest) (workerday.WorkerDay, error) {
	var v workerday.WorkerDay
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var (
			shop org.Shop
			err  error
		)
		v, shop, err = s.lockVacancy(ctx, req.VacancyID)
		if err != nil {
			return err
		}
		if v.EmployeeID == nil {
			return workerday.VacancyUnavailable("vacancy %d has no employee", v.ID)
		}
		owner := *v.EmployeeID

		if err := s.dropDrafts(ctx, v.ID); err != nil {
			return err
		}
		v.EmployeeID = nil
		v.EmploymentID = nil
		if err := s.hours.Fill(ctx, &v); err != nil {
			return err
		}
		if err := s.days.Update(ctx, &v); err != nil {
			return fmt.Errorf("unassign vacancy %d: %w", v.ID, err)
		}
		if err := s.giveHoliday(ctx, owner, v.Dt, workerday.SourceOnCancelVacancy); err != nil {
			return err
		}
		if err := wdsvc.Verify(ctx, s.days, []workerday.Slot{{EmployeeID: owner, Dt: v.Dt}}); err != nil {
			return err
		}
		if err := wdsvc.ScheduleRelink(ctx, s.tasks, []workerday.WorkerDay{{EmployeeID: &owner, Dt: v.Dt}}, false); err != nil {
			return err
		}
		return s.publish(ctx, notification.CodeVacancyRefused, v, shop.NetworkID, userRef(req.UserID), &owner)
	})
	if err != nil {
		return workerday.WorkerDay{}, err
	}
	return v, nil
}

// lockVacancy loads an assignable vacancy under a row lock.
func (s *service) lockVacancy(ctx context.Context, id int64) (workerday.WorkerDay, org.Shop, error) {
	rows, err := s.days.ListForUpdate(ctx, workerday.NewQuery().ByIDs(id))
	if err != nil {
		return workerday.WorkerDay{}, org.Shop{}, fmt.Errorf("lock vacancy %d: %w", id, err)
	}
	if len(rows) == 0 {
		return workerday.WorkerDay{}, org.Shop{}, workerday.VacancyUnavailable("vacancy %d not found", id)
	}
	v := rows[0]
	if !v.IsVacancy || v.IsFact || !v.IsApproved || v.ShopID == nil {
		return workerday.WorkerDay{}, org.Shop{}, workerday.VacancyUnavailable("worker day %d is not a vacancy", id)
	}
	if v.Canceled {
		return workerday.WorkerDay{}, org.Shop{}, workerday.VacancyUnavailable("vacancy %d is canceled", id)
	}
	shop, err := s.org.GetShop(ctx, *v.ShopID)
	if err != nil {
		return workerday.WorkerDay{}, org.Shop{}, fmt.Errorf("load shop %d: %w", *v.ShopID, err)
	}
	return v, shop, nil
}

func (s *service) checkBlacklist(ctx context.Context, user staff.User, shop org.Shop) error {
	if user.BlackListSymbol == nil || *user.BlackListSymbol == "" {
		return nil
	}
	shops, err := s.org.ListShops(ctx, org.ShopFilter{NetworkID: &shop.NetworkID, IncludeDeleted: true})
	if err != nil {
		return fmt.Errorf("load shops of network %d: %w", shop.NetworkID, err)
	}
	ancestors := org.NewTree(shops).Ancestors(shop.ID)
	listed, err := s.org.IsBlacklisted(ctx, *user.BlackListSymbol, ancestors)
	if err != nil {
		return fmt.Errorf("check blacklist: %w", err)
	}
	if listed {
		return workerday.VacancyUnavailable("user %d is blacklisted in shop %d", user.ID, shop.ID)
	}
	return nil
}

func (s *service) pickEmployment(ctx context.Context, employeeID int64, v workerday.WorkerDay) (staff.Employment, error) {
	emps, err := s.staff.ListEmployments(ctx, staff.EmploymentFilter{
		EmployeeIDs: []int64{employeeID},
		DtFrom:      &v.Dt,
		DtTo:        &v.Dt,
	})
	if err != nil {
		return staff.Employment{}, fmt.Errorf("load employments of employee %d: %w", employeeID, err)
	}
	var workTypeID *int64
	if len(v.Details) > 0 {
		workTypeID = &v.Details[0].WorkTypeID
	}
	e, ok := staff.PickEmployment(emps, v.Dt, v.ShopID, workTypeID)
	if !ok {
		return staff.Employment{}, workerday.EmploymentInactive(employeeID, v.Dt)
	}
	return e, nil
}

func (s *service) checkEligible(ctx context.Context, user staff.User, shop org.Shop, v workerday.WorkerDay) error {
	if user.NetworkID != shop.NetworkID {
		if v.IsOutsource && slices.Contains(v.Outsources, user.NetworkID) {
			return nil
		}
		return workerday.VacancyUnavailable("vacancy %d is closed to network %d", v.ID, user.NetworkID)
	}
	if !v.IsOutsource {
		return nil
	}
	network, err := s.org.GetNetwork(ctx, shop.NetworkID)
	if err != nil {
		return fmt.Errorf("load network %d: %w", shop.NetworkID, err)
	}
	if !network.Settings.AllowOwnStaffOnOutsourceVacancy {
		return workerday.VacancyUnavailable("vacancy %d is reserved for outsource staff", v.ID)
	}
	return nil
}

// checkPublished rejects cross-shop confirmation into a month the
// vacancy's shop has not approved yet, when the shop asks for it.
func (s *service) checkPublished(ctx context.Context, employment staff.Employment, shop org.Shop, dt time.Time) error {
	if employment.ShopID == shop.ID {
		return nil
	}
	settings, err := s.settings(ctx, shop)
	if err != nil {
		return err
	}
	if !settings.RequirePublishedMonth {
		return nil
	}
	month := dates.MonthStart(dt)
	stat, err := s.org.GetShopMonthStat(ctx, shop.ID, month)
	switch {
	case errors.Is(err, org.ErrShopMonthStatNotFound):
		return workerday.NoActivePlan(shop.ID, month)
	case err != nil:
		return fmt.Errorf("load month stat of shop %d: %w", shop.ID, err)
	case !stat.IsApproved:
		return workerday.NoActivePlan(shop.ID, month)
	}
	return nil
}

// clearDay frees the employee's plan on the vacancy date. Non-work rows
// always give way; work rows only in exchange mode.
func (s *service) clearDay(ctx context.Context, employeeID int64, v workerday.WorkerDay, exchange bool) error {
	rows, err := s.days.ListForUpdate(ctx, workerday.NewQuery().ForEmployees(employeeID).OnDates(v.Dt).Plan())
	if err != nil {
		return fmt.Errorf("load plans of employee %d: %w", employeeID, err)
	}

	var drop []int64
	for _, wd := range rows {
		switch {
		case wd.ID == v.ID || workerday.EqualPtr(wd.ParentWorkerDayID, &v.ID):
			continue
		case wd.Type.IsNonWork() && !wd.IsVacancy:
			drop = append(drop, wd.ID)
		case !exchange:
			return workerday.VacancyUnavailable("employee %d already works on %s", employeeID, dates.Format(v.Dt))
		case wd.IsVacancy && wd.IsApproved:
			wd.EmployeeID = nil
			wd.EmploymentID = nil
			if err := s.hours.Fill(ctx, &wd); err != nil {
				return err
			}
			if err := s.days.Update(ctx, &wd); err != nil {
				return fmt.Errorf("release vacancy %d: %w", wd.ID, err)
			}
		default:
			drop = append(drop, wd.ID)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	if err := s.days.Delete(ctx, drop); err != nil {
		return fmt.Errorf("clear day of employee %d: %w", employeeID, err)
	}
	return nil
}

func userRef(userID int64) *int64 {
	if userID == 0 {
		return nil
	}
	return workerday.Ptr(userID)
}
