package approval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/timetable-core/internal/domain/approval"
	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/permission"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	"github.com/cmlabs-hris/timetable-core/internal/service/servicetest"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e notification.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockPublisher) events(code notification.Code) []notification.Event {
	var out []notification.Event
	for _, call := range m.Calls {
		if e := call.Arguments.Get(1).(notification.Event); e.Code == code {
			out = append(out, e)
		}
	}
	return out
}

var (
	approveNow = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	march3     = dates.Date(2024, time.March, 3)
	march10    = dates.Date(2024, time.March, 10)
)

type fixture struct {
	w   *servicetest.World
	pub *MockPublisher
	svc approval.Service
	emp staff.Employee
}

func newFixture(t *testing.T) *fixture {
	w := servicetest.New(t, approveNow)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	svc := NewApprovalService(w.Store, w.Store.WorkerDays(), w.Store.Org(), w.Store.Staff(), w.Checker, w.Outbox, pub, nil)
	svc.(*service).now = func() time.Time { return w.Now }
	_, emp, _ := w.AddEmployee(w.Shop.ID, servicetest.EmployeeOpts{})
	return &fixture{w: w, pub: pub, svc: svc, emp: emp}
}

func (f *fixture) plan(dt time.Time, from, to int, approved bool, parent *int64) workerday.WorkerDay {
	return f.w.Put(servicetest.Row{
		EmployeeID: &f.emp.ID,
		Dt:         dt,
		From:       servicetest.Hours(from),
		To:         servicetest.Hours(to),
		IsApproved: approved,
		ParentID:   parent,
	})
}

func (f *fixture) approvePlan(userID int64, dt time.Time) (approval.Result, error) {
	return f.svc.Approve(f.w.Ctx(), approval.Request{
		UserID: userID,
		DtFrom: dt,
		DtTo:   dt,
		ShopID: &f.w.Shop.ID,
	})
}

func TestApprove_PromotesDraftAndKeepsWorkingCopy(t *testing.T) {
	f := newFixture(t)
	draft := f.plan(march10, 8, 20, false, nil)

	res, err := f.approvePlan(f.w.Admin.ID, march10)
	require.NoError(t, err)
	assert.Equal(t, []int64{draft.ID}, res.Approved)
	assert.Empty(t, res.Deleted)

	approved := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Approved())
	require.Len(t, approved, 1)
	assert.Equal(t, draft.ID, approved[0].ID)
	assert.Nil(t, approved[0].ParentWorkerDayID)

	drafts := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Draft())
	require.Len(t, drafts, 1)
	assert.Equal(t, workerday.SourceOnApprove, drafts[0].Source)
	require.NotNil(t, drafts[0].ParentWorkerDayID)
	assert.Equal(t, draft.ID, *drafts[0].ParentWorkerDayID)

	stat, err := f.w.Store.Org().GetShopMonthStat(f.w.Ctx(), f.w.Shop.ID, dates.MonthStart(march10))
	require.NoError(t, err)
	assert.True(t, stat.IsApproved)

	assert.Len(t, f.w.Pending(task.KindRelinkClosestPlan), 1)
	assert.Len(t, f.w.Pending(task.KindVacancyScan), 1)
	assert.Empty(t, f.w.Pending(task.KindReconcileFact), "future dates have no attendance to reconcile")
	assert.Len(t, f.pub.events(notification.CodeApprove), 1)
	assert.Empty(t, f.pub.events(notification.CodeApprovedNotFirst))
}

func TestApprove_SecondCallWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.plan(march10, 8, 20, false, nil)

	_, err := f.approvePlan(f.w.Admin.ID, march10)
	require.NoError(t, err)
	before := f.w.Rows(workerday.NewQuery())
	tasksBefore, err := f.w.Store.Tasks().ListByStatus(f.w.Ctx(), task.StatusPending, 0)
	require.NoError(t, err)

	f.w.Now = f.w.Now.Add(time.Hour)
	res, err := f.approvePlan(f.w.Admin.ID, march10)
	require.NoError(t, err)
	assert.Zero(t, res.Affected())

	assert.Equal(t, before, f.w.Rows(workerday.NewQuery()))
	tasksAfter, err := f.w.Store.Tasks().ListByStatus(f.w.Ctx(), task.StatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, tasksAfter, len(tasksBefore))
	assert.Len(t, f.pub.events(notification.CodeApprove), 1)
}

func TestApprove_ReplacesChangedApprovedRow(t *testing.T) {
	f := newFixture(t)
	old := f.plan(march10, 8, 20, true, nil)
	draft := f.plan(march10, 10, 18, false, &old.ID)

	res, err := f.approvePlan(f.w.Admin.ID, march10)
	require.NoError(t, err)
	assert.Equal(t, []int64{draft.ID}, res.Approved)
	assert.Equal(t, []int64{old.ID}, res.Deleted)

	approved := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Approved())
	require.Len(t, approved, 1)
	start, end, _ := approved[0].Interval()
	assert.True(t, start.Equal(f.w.At(march10, 10, 0)))
	assert.True(t, end.Equal(f.w.At(march10, 18, 0)))
}

func TestApprove_RemovesApprovedRowWithoutDraft(t *testing.T) {
	f := newFixture(t)
	old := f.plan(march10, 8, 20, true, nil)

	res, err := f.approvePlan(f.w.Admin.ID, march10)
	require.NoError(t, err)
	assert.Empty(t, res.Approved)
	assert.Equal(t, []int64{old.ID}, res.Deleted)
	assert.Empty(t, f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID)))
}

func TestApprove_OverlapRollsBack(t *testing.T) {
	f := newFixture(t)
	other := f.w.AddShop("second")
	otherWT := f.w.AddWorkType(other.ID)
	morning := f.w.Put(servicetest.Row{
		EmployeeID: &f.emp.ID,
		ShopID:     other.ID,
		WorkTypeID: otherWT.ID,
		Dt:         march3,
		From:       servicetest.Hours(8),
		To:         servicetest.Hours(14),
		IsApproved: true,
	})
	draft := f.plan(march3, 13, 20, false, nil)
	before := f.w.Rows(workerday.NewQuery())

	_, err := f.approvePlan(f.w.Admin.ID, march3)
	require.Error(t, err)
	assert.ErrorIs(t, err, workerday.ErrWorkTimeOverlap)

	var overlap *workerday.WorkTimeOverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, f.emp.ID, overlap.EmployeeID)
	assert.ElementsMatch(t, []int64{morning.ID, draft.ID}, []int64{overlap.FirstID, overlap.SecondID})
	assert.True(t, overlap.From.Equal(f.w.At(march3, 13, 0)))
	assert.True(t, overlap.To.Equal(f.w.At(march3, 14, 0)))

	assert.Equal(t, before, f.w.Rows(workerday.NewQuery()))
	assert.Empty(t, f.w.Pending(task.KindRelinkClosestPlan))
	assert.Empty(t, f.pub.events(notification.CodeApprove))
}

func TestApprove_ConflictOutsideShopScope(t *testing.T) {
	f := newFixture(t)
	other := f.w.AddShop("second")
	otherWT := f.w.AddWorkType(other.ID)
	f.w.Put(servicetest.Row{
		EmployeeID: &f.emp.ID,
		ShopID:     other.ID,
		WorkTypeID: otherWT.ID,
		Dt:         march3,
		From:       servicetest.Hours(8),
		To:         servicetest.Hours(12),
		IsApproved: true,
	})
	f.plan(march3, 13, 20, false, nil)
	before := f.w.Rows(workerday.NewQuery())

	_, err := f.approvePlan(f.w.Admin.ID, march3)
	assert.ErrorIs(t, err, workerday.ErrInvariantViolation)
	assert.NotErrorIs(t, err, workerday.ErrWorkTimeOverlap)
	assert.Equal(t, before, f.w.Rows(workerday.NewQuery()))
}

func TestApprove_TypeFilter(t *testing.T) {
	dayoff := func(f *fixture, typ workerday.Type, approved bool, parent *int64) workerday.WorkerDay {
		return f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: march10, Type: typ, IsApproved: approved, ParentID: parent})
	}
	approveTypes := func(f *fixture, types ...workerday.Type) (approval.Result, error) {
		return f.svc.Approve(f.w.Ctx(), approval.Request{
			UserID:  f.w.Admin.ID,
			DtFrom:  march10,
			DtTo:    march10,
			ShopID:  &f.w.Shop.ID,
			WDTypes: types,
		})
	}

	t.Run("selected draft replaces an approved day of another type", func(t *testing.T) {
		f := newFixture(t)
		holiday := dayoff(f, workerday.TypeHoliday, true, nil)
		vacation := dayoff(f, workerday.TypeVacation, false, &holiday.ID)

		res, err := approveTypes(f, workerday.TypeVacation)
		require.NoError(t, err)
		assert.Equal(t, []int64{vacation.ID}, res.Approved)
		assert.Equal(t, []int64{holiday.ID}, res.Deleted)

		approved := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Approved())
		require.Len(t, approved, 1)
		assert.Equal(t, workerday.TypeVacation, approved[0].Type)
	})

	t.Run("approved day of a selected type waits for its unselected draft", func(t *testing.T) {
		f := newFixture(t)
		vacation := dayoff(f, workerday.TypeVacation, true, nil)
		dayoff(f, workerday.TypeHoliday, false, &vacation.ID)
		before := f.w.Rows(workerday.NewQuery())

		res, err := approveTypes(f, workerday.TypeVacation)
		require.NoError(t, err)
		assert.Zero(t, res.Affected())
		assert.Equal(t, before, f.w.Rows(workerday.NewQuery()))
	})
}

func TestApprove_DeletesAutomaticFactsOfReplacedPlan(t *testing.T) {
	f := newFixture(t)
	old := f.plan(march3, 8, 20, true, nil)
	f.plan(march3, 9, 21, false, &old.ID)
	fact := f.w.Put(servicetest.Row{
		EmployeeID: &f.emp.ID,
		Dt:         march3,
		From:       servicetest.Hours(8),
		To:         servicetest.Hours(20),
		IsFact:     true,
		IsApproved: true,
		Source:     workerday.SourceFactFromAttendance,
	})
	manual := f.w.Put(servicetest.Row{
		EmployeeID: &f.emp.ID,
		Dt:         march3,
		From:       servicetest.Hours(8),
		To:         servicetest.Hours(20),
		IsFact:     true,
		Manual:     true,
	})
	require.NoError(t, f.w.Store.WorkerDays().SetClosestPlan(f.w.Ctx(), fact.ID, &old.ID))
	require.NoError(t, f.w.Store.WorkerDays().SetClosestPlan(f.w.Ctx(), manual.ID, &old.ID))

	res, err := f.approvePlan(f.w.Admin.ID, march3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{old.ID, fact.ID}, res.Deleted)

	facts := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Fact())
	require.Len(t, facts, 1)
	assert.Equal(t, manual.ID, facts[0].ID)
	assert.Nil(t, facts[0].ClosestPlanApprovedID)

	reconcile := f.w.Pending(task.KindReconcileFact)
	require.Len(t, reconcile, 1)
	var payload task.ReconcilePayload
	require.NoError(t, json.Unmarshal(reconcile[0].Payload, &payload))
	require.Len(t, payload.EmployeeDates, 1)
	assert.Equal(t, f.emp.ID, payload.EmployeeDates[0].EmployeeID)
	assert.True(t, payload.EmployeeDates[0].Dt.Equal(march3))

	relink := f.w.Pending(task.KindRelinkClosestPlan)
	require.Len(t, relink, 1)
	var relinkPayload task.RelinkPayload
	require.NoError(t, json.Unmarshal(relink[0].Payload, &relinkPayload))
	assert.True(t, relinkPayload.RecalcManual)
}

func TestApprove_FactSchedulesTimesheet(t *testing.T) {
	f := newFixture(t)
	f.w.Put(servicetest.Row{
		EmployeeID: &f.emp.ID,
		Dt:         march3,
		From:       servicetest.Hours(8),
		To:         servicetest.Hours(20),
		IsFact:     true,
	})

	res, err := f.svc.Approve(f.w.Ctx(), approval.Request{
		UserID: f.w.Admin.ID,
		IsFact: true,
		DtFrom: dates.MonthStart(march3),
		DtTo:   dates.MonthEnd(march3),
	})
	require.NoError(t, err)
	assert.Len(t, res.Approved, 1)

	pending := f.w.Pending(task.KindRecalcTimesheet)
	require.Len(t, pending, 1)
	var payload task.TimesheetPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, f.emp.ID, payload.EmployeeID)
	assert.True(t, payload.Month.Equal(dates.MonthStart(march3)))
	assert.Empty(t, f.w.Pending(task.KindVacancyScan))
}

func TestApprove_LeavesOpenVacanciesAlone(t *testing.T) {
	f := newFixture(t)
	vacancy := f.w.Put(servicetest.Row{
		Dt:         march10,
		From:       servicetest.Hours(9),
		To:         servicetest.Hours(21),
		IsApproved: true,
		IsVacancy:  true,
		Source:     workerday.SourceAutoVacancy,
	})
	f.plan(march10, 8, 20, false, nil)

	res, err := f.approvePlan(f.w.Admin.ID, march10)
	require.NoError(t, err)
	assert.NotContains(t, res.Deleted, vacancy.ID)
	assert.Len(t, f.w.Rows(workerday.NewQuery().ByIDs(vacancy.ID)), 1)
}

func TestApprove_Permissions(t *testing.T) {
	t.Run("missing approve permission", func(t *testing.T) {
		f := newFixture(t)
		group := f.w.Store.AddGroup(staff.Group{NetworkID: f.w.Network.ID, Name: "planners"})
		planner, _, _ := f.w.AddEmployee(f.w.Shop.ID, servicetest.EmployeeOpts{GroupID: &group.ID})
		f.plan(march10, 8, 20, false, nil)

		_, err := f.approvePlan(planner.ID, march10)
		assert.ErrorIs(t, err, workerday.ErrPermissionDenied)
		assert.Empty(t, f.w.Rows(workerday.NewQuery().Approved()))
	})

	t.Run("protected day", func(t *testing.T) {
		f := newFixture(t)
		group := f.w.Store.AddGroup(staff.Group{NetworkID: f.w.Network.ID, Name: "managers"})
		f.w.GrantAll(group.ID)
		manager, _, _ := f.w.AddEmployee(f.w.Shop.ID, servicetest.EmployeeOpts{GroupID: &group.ID})
		old := f.plan(march10, 8, 20, true, nil)
		require.NoError(t, f.w.Store.WorkerDays().SetBlocked(f.w.Ctx(), []int64{old.ID}, true))
		f.plan(march10, 10, 18, false, &old.ID)

		_, err := f.approvePlan(manager.ID, march10)
		assert.ErrorIs(t, err, workerday.ErrPermissionDenied)

		_, err = f.approvePlan(f.w.Admin.ID, march10)
		assert.NoError(t, err)
	})

	t.Run("first approval is reported", func(t *testing.T) {
		f := newFixture(t)
		group := f.w.Store.AddGroup(staff.Group{NetworkID: f.w.Network.ID, Name: "seniors"})
		f.w.Store.AddPermission(permission.GroupWorkerDayPermission{
			GroupID:      group.ID,
			Action:       permission.ActionApprove,
			GraphType:    workerday.GraphPlan,
			WDType:       workerday.TypeWorkday,
			EmployeeType: permission.EmployeeMyNetwork,
			ShopType:     permission.ShopMyNetwork,
		})
		senior, _, _ := f.w.AddEmployee(f.w.Shop.ID, servicetest.EmployeeOpts{GroupID: &group.ID})
		f.plan(march10, 8, 20, false, nil)

		res, err := f.approvePlan(senior.ID, march10)
		require.NoError(t, err)
		assert.Len(t, res.Approved, 1)

		notFirst := f.pub.events(notification.CodeApprovedNotFirst)
		require.Len(t, notFirst, 1)
		assert.EqualValues(t, f.emp.ID, notFirst[0].Context["employee_id"])
		assert.Equal(t, "2024-03-10", notFirst[0].Context["dt"])
	})
}

func TestApprove_ValidatesRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Approve(f.w.Ctx(), approval.Request{UserID: f.w.Admin.ID, DtFrom: march10, DtTo: march3})
	assert.Error(t, err)
}

func TestRequestApprove(t *testing.T) {
	f := newFixture(t)
	err := f.svc.RequestApprove(f.w.Ctx(), approval.RequestApproveRequest{
		UserID: f.w.Admin.ID,
		ShopID: f.w.Shop.ID,
		DtFrom: march3,
		DtTo:   march10,
	})
	require.NoError(t, err)

	sent := f.pub.events(notification.CodeRequestApprove)
	require.Len(t, sent, 1)
	assert.Equal(t, f.w.Network.ID, sent[0].NetworkID)
	assert.Equal(t, f.w.Shop.ID, sent[0].Context["shop_id"])
	assert.Equal(t, "2024-03-03", sent[0].Context["dt_from"])
	require.NotNil(t, sent[0].AuthorID)
	assert.Equal(t, f.w.Admin.ID, *sent[0].AuthorID)
}
