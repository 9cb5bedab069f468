package timesheet

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/lock"
	"github.com/cmlabs-hris/timetable-core/internal/service/servicetest"
)

var march = dates.Date(2024, time.March, 1)

type fixture struct {
	w   *servicetest.World
	svc timesheet.Service
	emp staff.Employee
}

func newFixture(t *testing.T, normHours float64) *fixture {
	w := servicetest.New(t, time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC))
	position := w.Store.AddPosition(staff.Position{NetworkID: w.Network.ID, Name: "cashier", MonthlyNormHours: &normHours})
	_, emp, _ := w.AddEmployee(w.Shop.ID, servicetest.EmployeeOpts{PositionID: &position.ID})

	svc := NewTimesheetService(w.Store, w.Store.Timesheets(), w.Store.WorkerDays(), w.Store.Org(), w.Store.Staff(), w.Store.Calendar())
	return &fixture{w: w, svc: svc, emp: emp}
}

func (f *fixture) fact(day, from, to int) workerday.WorkerDay {
	return f.w.Put(servicetest.Row{
		EmployeeID: &f.emp.ID,
		Dt:         dates.Date(2024, time.March, day),
		From:       servicetest.Hours(from),
		To:         servicetest.Hours(to),
		IsFact:     true,
		IsApproved: true,
	})
}

func sumNight(items []timesheet.Item) decimal.Decimal {
	total := decimal.Zero
	for _, i := range items {
		total = total.Add(i.NightHours)
	}
	return total
}

func TestRecalc_SplitsOverNorm(t *testing.T) {
	f := newFixture(t, 160)
	for day := 1; day <= 13; day++ {
		f.fact(day, 8, 20)
	}
	f.fact(15, 18, 6)
	f.fact(20, 10, 12)

	res, err := f.svc.Recalc(f.w.Ctx(), f.emp.ID, march)
	require.NoError(t, err)

	assertHours(t, 160, res.Norm)
	assertHours(t, 170, timesheet.Sum(res.Fact))
	assertHours(t, 160, timesheet.Sum(res.Main))
	assertHours(t, 10, timesheet.Sum(res.Additional))
	assertHours(t, 8, sumNight(res.Additional))
	assert.True(t, sumNight(res.Main).IsZero())

	var night timesheet.Item
	for _, item := range res.Main {
		if item.Dt.Equal(dates.Date(2024, time.March, 15)) {
			night = item
		}
	}
	assertHours(t, 4, night.DayHours)
	assert.NotNil(t, night.WorkTypeNameID)
	assert.Equal(t, timesheet.TypeMain, night.TimesheetType)

	stored, err := f.w.Store.Timesheets().List(f.w.Ctx(), f.emp.ID, march)
	require.NoError(t, err)
	assert.Len(t, stored, len(res.Fact)+len(res.Main)+len(res.Additional))
}

func TestRecalc_ReplacesPreviousRun(t *testing.T) {
	f := newFixture(t, 160)
	f.fact(1, 8, 20)

	_, err := f.svc.Recalc(f.w.Ctx(), f.emp.ID, march)
	require.NoError(t, err)
	f.fact(2, 8, 20)
	res, err := f.svc.Recalc(f.w.Ctx(), f.emp.ID, dates.Date(2024, time.March, 17))
	require.NoError(t, err)

	stored, err := f.w.Store.Timesheets().List(f.w.Ctx(), f.emp.ID, march)
	require.NoError(t, err)
	assert.Len(t, stored, 4, "two fact and two main items")
	assertHours(t, 24, timesheet.Sum(res.Main))
}

func TestRecalc_PlanDayoffsCountTowardNorm(t *testing.T) {
	f := newFixture(t, 0)
	f.fact(1, 8, 20)
	f.w.Put(servicetest.Row{
		EmployeeID: &f.emp.ID,
		Dt:         dates.Date(2024, time.March, 4),
		Type:       workerday.TypeVacation,
		IsApproved: true,
		WorkHours:  8 * time.Hour,
	})

	res, err := f.svc.Recalc(f.w.Ctx(), f.emp.ID, march)
	require.NoError(t, err)
	require.Len(t, res.Fact, 2)
	assert.Equal(t, workerday.TypeVacation, res.Fact[1].DayType)
	assertHours(t, 8, res.Fact[1].DayHours)

	require.Len(t, res.Main, 1, "only the vacation stays under a zero norm")
	assert.Equal(t, workerday.TypeVacation, res.Main[0].DayType)
	assertHours(t, 12, timesheet.Sum(res.Additional))
}

func TestRecalc_UnknownStrategyFallsBack(t *testing.T) {
	f := newFixture(t, 8)
	f.w.UpdateNetwork(func(s *org.NetworkSettings) { s.TimesheetStrategy = "weekly" })
	f.fact(1, 8, 20)

	res, err := f.svc.Recalc(f.w.Ctx(), f.emp.ID, march)
	require.NoError(t, err)
	assertHours(t, 4, timesheet.Sum(res.Additional))
}

func TestRecalc_NoEmployment(t *testing.T) {
	f := newFixture(t, 160)
	fired := dates.Date(2024, time.February, 1)
	_, gone, _ := f.w.AddEmployee(f.w.Shop.ID, servicetest.EmployeeOpts{Fired: &fired})

	_, err := f.svc.Recalc(f.w.Ctx(), gone.ID, march)
	assert.ErrorIs(t, err, timesheet.ErrNoEmployment)
}

func TestRecalcHandler(t *testing.T) {
	f := newFixture(t, 160)
	f.fact(1, 8, 20)
	locker := lock.NewLocalLocker()
	handler := RecalcHandler(f.svc, locker)

	payload := func(p task.TimesheetPayload) task.Task {
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		return task.Task{Kind: task.KindRecalcTimesheet, Payload: raw}
	}

	t.Run("invalid payload", func(t *testing.T) {
		err := handler(f.w.Ctx(), task.Task{Payload: json.RawMessage(`{"employee_id": 0}`)})
		assert.ErrorIs(t, err, task.ErrInvalidPayload)
	})

	t.Run("busy employee month", func(t *testing.T) {
		release, err := locker.Acquire(f.w.Ctx(), fmt.Sprintf("timesheet:employee:%d:2024-03", f.emp.ID), time.Minute)
		require.NoError(t, err)
		defer release()

		err = handler(f.w.Ctx(), payload(task.TimesheetPayload{EmployeeID: f.emp.ID, Month: march}))
		assert.ErrorIs(t, err, lock.ErrNotAcquired)
	})

	t.Run("recalculates", func(t *testing.T) {
		require.NoError(t, handler(f.w.Ctx(), payload(task.TimesheetPayload{EmployeeID: f.emp.ID, Month: march})))
		stored, err := f.w.Store.Timesheets().List(f.w.Ctx(), f.emp.ID, march)
		require.NoError(t, err)
		assert.NotEmpty(t, stored)
	})

	t.Run("no employment is not retried", func(t *testing.T) {
		fired := dates.Date(2024, time.January, 31)
		_, gone, _ := f.w.AddEmployee(f.w.Shop.ID, servicetest.EmployeeOpts{Fired: &fired})
		assert.NoError(t, handler(f.w.Ctx(), payload(task.TimesheetPayload{EmployeeID: gone.ID, Month: march})))
	})
}
