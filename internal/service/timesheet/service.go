package timesheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cmlabs-hris/timetable-core/internal/domain/calendar"
	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/lock"
)

const recalcLockTTL = 5 * time.Minute

type service struct {
	tx       database.Transactor
	repo     timesheet.Repository
	days     workerday.Repository
	org      org.Repository
	staff    staff.Repository
	calendar calendar.Repository
}

func NewTimesheetService(
	tx database.Transactor,
	repo timesheet.Repository,
	days workerday.Repository,
	orgRepo org.Repository,
	staffRepo staff.Repository,
	calendarRepo calendar.Repository,
) timesheet.Service {
	return &service{
		tx:       tx,
		repo:     repo,
		days:     days,
		org:      orgRepo,
		staff:    staffRepo,
		calendar: calendarRepo,
	}
}

// Recalc rebuilds the fiscal timesheet of one employee month from the
// approved facts and replaces the stored items.
func (s *service) Recalc(ctx context.Context, employeeID int64, month time.Time) (timesheet.Result, error) {
	month = dates.MonthStart(month)
	from, to := month, dates.MonthEnd(month)

	emp, err := s.staff.GetEmployee(ctx, employeeID)
	if err != nil {
		return timesheet.Result{}, err
	}
	user, err := s.staff.GetUser(ctx, emp.UserID)
	if err != nil {
		return timesheet.Result{}, err
	}
	network, err := s.org.GetNetwork(ctx, user.NetworkID)
	if err != nil {
		return timesheet.Result{}, err
	}
	employments, err := s.staff.ListEmployments(ctx, staff.EmploymentFilter{
		EmployeeIDs: []int64{employeeID},
		DtFrom:      &from,
		DtTo:        &to,
	})
	if err != nil {
		return timesheet.Result{}, fmt.Errorf("load employments: %w", err)
	}
	responsible, ok := latestEmployment(employments, from, to)
	if !ok {
		return timesheet.Result{}, timesheet.ErrNoEmployment
	}

	rows, err := s.days.List(ctx, workerday.NewQuery().
		ForEmployees(employeeID).
		InRange(from, to).
		Approved().
		NotCanceled())
	if err != nil {
		return timesheet.Result{}, fmt.Errorf("load worker days: %w", err)
	}

	b := NewBuffers()
	seed := seeder{s: s, settings: network.Settings, employments: employments, shops: map[int64]org.Shop{}, names: map[int64]*int64{}}
	reducing, err := seed.fill(ctx, b.Fact, rows)
	if err != nil {
		return timesheet.Result{}, err
	}

	norm, err := s.norm(ctx, month, responsible, reducing)
	if err != nil {
		return timesheet.Result{}, err
	}
	strategy, err := StrategyByName(network.Settings.TimesheetStrategy)
	if err != nil {
		slog.Warn("Falling back to the base timesheet strategy", "network_id", network.ID, "error", err)
		strategy = strategies[DefaultStrategy]
	}
	strategy(b, norm)

	result := timesheet.Result{
		EmployeeID: employeeID,
		Month:      month,
		Norm:       norm,
		Fact:       typed(b.Fact.Items(), employeeID, timesheet.TypeFact),
		Main:       typed(b.Main.Items(), employeeID, timesheet.TypeMain),
		Additional: typed(b.Additional.Items(), employeeID, timesheet.TypeAdditional),
	}

	items := make([]timesheet.Item, 0, len(result.Fact)+len(result.Main)+len(result.Additional))
	items = append(items, result.Fact...)
	items = append(items, result.Main...)
	items = append(items, result.Additional...)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.ReplaceForEmployeeMonth(ctx, employeeID, month, items)
	})
	if err != nil {
		return timesheet.Result{}, fmt.Errorf("store timesheet: %w", err)
	}

	slog.Info("Timesheet recalculated", "employee_id", employeeID, "month", month.Format("2006-01"),
		"norm", norm.String(), "fact", timesheet.Sum(result.Fact).String(),
		"additional", timesheet.Sum(result.Additional).String())
	return result, nil
}

func (s *service) norm(ctx context.Context, month time.Time, e staff.Employment, reducing int) (decimal.Decimal, error) {
	var position *staff.Position
	if e.PositionID != nil {
		positions, err := s.staff.ListPositions(ctx, []int64{*e.PositionID})
		if err != nil {
			return decimal.Zero, fmt.Errorf("load position %d: %w", *e.PositionID, err)
		}
		if len(positions) > 0 {
			position = &positions[0]
		}
	}
	shop, err := s.org.GetShop(ctx, e.ShopID)
	if err != nil {
		return decimal.Zero, err
	}
	days, err := s.calendar.ListProductionDays(ctx, shop.Region, month, dates.MonthEnd(month))
	if err != nil {
		return decimal.Zero, fmt.Errorf("load production calendar: %w", err)
	}
	return MonthlyNorm(month, days, position, e.NormWorkHours, reducing), nil
}

// latestEmployment returns the employment responsible for the end of the
// range: the preferred one active on the latest date that has any.
func latestEmployment(emps []staff.Employment, from, to time.Time) (staff.Employment, bool) {
	for dt := to; !dt.Before(from); dt = dt.AddDate(0, 0, -1) {
		if e, ok := staff.PickEmployment(emps, dt, nil, nil); ok {
			return e, true
		}
	}
	return staff.Employment{}, false
}

func typed(items []timesheet.Item, employeeID int64, t timesheet.Type) []timesheet.Item {
	for i := range items {
		items[i].EmployeeID = employeeID
		items[i].TimesheetType = t
	}
	return items
}

// RecalcHandler runs a scheduled recalc_timesheet task. One employee month
// is recalculated by one worker at a time.
func RecalcHandler(svc timesheet.Service, locker lock.Locker) task.Handler {
	return func(ctx context.Context, t task.Task) error {
		var p task.TimesheetPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", task.ErrInvalidPayload, err)
		}
		if p.EmployeeID == 0 || p.Month.IsZero() {
			return fmt.Errorf("%w: employee_id and month are required", task.ErrInvalidPayload)
		}

		key := fmt.Sprintf("timesheet:employee:%d:%s", p.EmployeeID, p.Month.Format("2006-01"))
		release, err := locker.Acquire(ctx, key, recalcLockTTL)
		if err != nil {
			return err
		}
		defer release()

		_, err = svc.Recalc(ctx, p.EmployeeID, p.Month)
		if errors.Is(err, timesheet.ErrNoEmployment) {
			slog.Info("Timesheet skipped, no employment in month", "employee_id", p.EmployeeID, "month", p.Month.Format("2006-01"))
			return nil
		}
		return err
	}
}
