package workerday

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	"github.com/cmlabs-hris/timetable-core/internal/service/servicetest"
)

var testDt = dates.Date(2024, 3, 12)

type fixture struct {
	w    *servicetest.World
	svc  workerday.Service
	emp  staff.Employee
	user staff.User
	job  staff.Employment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w := servicetest.New(t, time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC))
	user, emp, job := w.AddEmployee(w.Shop.ID, servicetest.EmployeeOpts{WorkTypes: []int64{w.WorkType.ID}})
	svc := NewWorkerDayService(w.Store, w.Store.WorkerDays(), w.Store.Org(), w.Store.Staff(), w.Checker, w.Outbox)
	return &fixture{w: w, svc: svc, emp: emp, user: user, job: job}
}

func (f *fixture) workday(from, to int) workerday.Input {
	start := f.w.At(testDt, from, 0)
	end := f.w.At(testDt, to, 0)
	return workerday.Input{
		EmployeeID:    &f.emp.ID,
		ShopID:        &f.w.Shop.ID,
		Dt:            testDt,
		Type:          workerday.TypeWorkday,
		DttmWorkStart: &start,
		DttmWorkEnd:   &end,
		Details:       []workerday.Detail{{WorkTypeID: f.w.WorkType.ID, WorkPart: 1}},
	}
}

func TestService_CreateFillsDerivedFields(t *testing.T) {
	f := newFixture(t)
	f.w.Store.AddShop(func() org.Shop {
		shop := f.w.Shop
		shop.BreakPolicy = org.BreakPolicy{{MaxMinutes: 360, BreakMinutes: 0}, {MaxMinutes: 1440, BreakMinutes: 60}}
		return shop
	}())
	approved := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(10), To: servicetest.Hours(19), IsApproved: true})

	wd, err := f.svc.Create(f.w.Ctx(), f.w.Admin.ID, f.workday(9, 18))
	require.NoError(t, err)

	assert.False(t, wd.IsApproved)
	assert.Equal(t, 8*time.Hour, wd.WorkHours)
	require.NotNil(t, wd.EmploymentID)
	assert.Equal(t, f.job.ID, *wd.EmploymentID)
	require.NotNil(t, wd.ParentWorkerDayID)
	assert.Equal(t, approved.ID, *wd.ParentWorkerDayID)
	assert.Equal(t, workerday.SourceManual, wd.Source)
	assert.True(t, wd.ManuallyEdited())
}

func TestService_CreatePaidDayoffGetsDefaultHours(t *testing.T) {
	f := newFixture(t)

	wd, err := f.svc.Create(f.w.Ctx(), f.w.Admin.ID, workerday.Input{
		EmployeeID: &f.emp.ID,
		Dt:         testDt,
		Type:       workerday.TypeVacation,
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultPaidDayoffHours, wd.WorkHours)

	holiday, err := f.svc.Create(f.w.Ctx(), f.w.Admin.ID, workerday.Input{
		EmployeeID: &f.emp.ID,
		Dt:         testDt.AddDate(0, 0, 1),
		Type:       workerday.TypeHoliday,
	})
	require.NoError(t, err)
	assert.Zero(t, holiday.WorkHours)
}

func TestService_CreateRejectsSecondDraft(t *testing.T) {
	f := newFixture(t)
	existing := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(9), To: servicetest.Hours(14)})

	t.Run("overlapping", func(t *testing.T) {
		_, err := f.svc.Create(f.w.Ctx(), f.w.Admin.ID, f.workday(13, 18))
		require.Error(t, err)
		assert.True(t, errors.Is(err, workerday.ErrWorkTimeOverlap))

		var overlap *workerday.WorkTimeOverlapError
		require.ErrorAs(t, err, &overlap)
		assert.Equal(t, existing.ID, overlap.FirstID)
		assert.Equal(t, f.w.At(testDt, 13, 0), overlap.From)
		assert.Equal(t, f.w.At(testDt, 14, 0), overlap.To)
	})

	t.Run("disjoint", func(t *testing.T) {
		_, err := f.svc.Create(f.w.Ctx(), f.w.Admin.ID, f.workday(15, 18))
		assert.ErrorIs(t, err, workerday.ErrInvariantViolation)
	})

	drafts := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Draft())
	require.Len(t, drafts, 1)
	assert.Equal(t, existing.ID, drafts[0].ID)
}

func TestService_CreateChecksEmployment(t *testing.T) {
	f := newFixture(t)
	fired := testDt.AddDate(0, 0, -5)
	_, gone, _ := f.w.AddEmployee(f.w.Shop.ID, servicetest.EmployeeOpts{Fired: &fired})

	in := f.workday(9, 18)
	in.EmployeeID = &gone.ID
	_, err := f.svc.Create(f.w.Ctx(), f.w.Admin.ID, in)
	assert.ErrorIs(t, err, workerday.ErrEmploymentInactive)

	in.SkipEmploymentCheck = true
	_, err = f.svc.Create(f.w.Ctx(), f.w.Admin.ID, in)
	assert.NoError(t, err)
}

func TestService_UpdateRejectsApproved(t *testing.T) {
	f := newFixture(t)
	approved := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(9), To: servicetest.Hours(18), IsApproved: true})

	_, err := f.svc.Update(f.w.Ctx(), f.w.Admin.ID, approved.ID, f.workday(10, 18))
	assert.ErrorIs(t, err, workerday.ErrInvariantViolation)
}

func TestService_UpdateRecomputesHours(t *testing.T) {
	f := newFixture(t)
	draft, err := f.svc.Create(f.w.Ctx(), f.w.Admin.ID, f.workday(9, 18))
	require.NoError(t, err)

	updated, err := f.svc.Update(f.w.Ctx(), f.w.Admin.ID, draft.ID, f.workday(9, 13))
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, updated.WorkHours)
	assert.Equal(t, draft.EmploymentID, updated.EmploymentID)
}

func TestService_ProtectedDaysNeedFlag(t *testing.T) {
	f := newFixture(t)
	managers := f.w.Store.AddGroup(staff.Group{NetworkID: f.w.Network.ID, Name: "managers"})
	f.w.GrantAll(managers.ID)
	manager, _, _ := f.w.AddEmployee(f.w.Shop.ID, servicetest.EmployeeOpts{GroupID: &managers.ID})

	approved := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(9), To: servicetest.Hours(18), IsApproved: true})
	require.NoError(t, f.svc.SetBlocked(f.w.Ctx(), f.w.Admin.ID, []int64{approved.ID}, true))

	_, err := f.svc.Create(f.w.Ctx(), manager.ID, f.workday(10, 18))
	assert.ErrorIs(t, err, workerday.ErrPermissionDenied)

	err = f.svc.SetBlocked(f.w.Ctx(), manager.ID, []int64{approved.ID}, false)
	assert.ErrorIs(t, err, workerday.ErrPermissionDenied)

	_, err = f.svc.Create(f.w.Ctx(), f.w.Admin.ID, f.workday(10, 18))
	assert.NoError(t, err)
}

func TestService_DeleteApprovedPlanSchedulesRelink(t *testing.T) {
	f := newFixture(t)
	plan := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(9), To: servicetest.Hours(18), IsApproved: true})
	fact := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(9), To: servicetest.Hours(18), IsApproved: true, IsFact: true})
	fact.ClosestPlanApprovedID = &plan.ID
	f.w.Store.AddWorkerDay(fact)

	require.NoError(t, f.svc.Delete(f.w.Ctx(), f.w.Admin.ID, []int64{plan.ID}))

	pending := f.w.Pending(task.KindRelinkClosestPlan)
	require.Len(t, pending, 1)

	rows := f.w.Rows(workerday.NewQuery().ByIDs(fact.ID))
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].ClosestPlanApprovedID)

	err := f.svc.Delete(f.w.Ctx(), f.w.Admin.ID, []int64{plan.ID})
	assert.ErrorIs(t, err, workerday.ErrWorkerDayNotFound)
}

func TestService_BatchReplacesScope(t *testing.T) {
	f := newFixture(t)
	keep := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(9), To: servicetest.Hours(18)})
	doomed := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt.AddDate(0, 0, 1), From: servicetest.Hours(9), To: servicetest.Hours(18)})

	scope := workerday.NewQuery().ForEmployees(f.emp.ID).InRange(testDt, testDt.AddDate(0, 0, 2)).Draft()
	moved := f.workday(12, 20)
	moved.ID = keep.ID
	fresh := f.workday(8, 12)
	fresh.Dt = testDt.AddDate(0, 0, 2)
	fresh.DttmWorkStart = workerday.Ptr(f.w.At(fresh.Dt, 8, 0))
	fresh.DttmWorkEnd = workerday.Ptr(f.w.At(fresh.Dt, 12, 0))

	result, err := f.svc.BatchUpdateOrCreate(f.w.Ctx(), f.w.Admin.ID, workerday.BatchRequest{
		Rows:        []workerday.Input{moved, fresh},
		DeleteScope: &scope,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{doomed.ID}, result.Deleted)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, 8*time.Hour, result.Updated[0].WorkHours)
	require.Len(t, result.Created, 1)
	assert.Equal(t, workerday.SourceChangeList, result.Created[0].Source)

	drafts := f.w.Rows(scope)
	assert.Len(t, drafts, 2)
}

func TestService_BatchRollsBackOnOverlap(t *testing.T) {
	f := newFixture(t)
	a := f.workday(9, 14)
	b := f.workday(13, 18)

	_, err := f.svc.BatchUpdateOrCreate(f.w.Ctx(), f.w.Admin.ID, workerday.BatchRequest{Rows: []workerday.Input{a, b}})
	assert.ErrorIs(t, err, workerday.ErrWorkTimeOverlap)
	assert.Empty(t, f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID)))
}

func TestService_CopyApproved(t *testing.T) {
	f := newFixture(t)
	withDraft := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(9), To: servicetest.Hours(18), IsApproved: true})
	f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(10), To: servicetest.Hours(18), ParentID: &withDraft.ID})
	lonely := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt.AddDate(0, 0, 1), From: servicetest.Hours(9), To: servicetest.Hours(18), IsApproved: true})

	n, err := f.svc.CopyApproved(f.w.Ctx(), f.w.Admin.ID, workerday.CopyApprovedRequest{
		DtFrom: testDt,
		DtTo:   testDt.AddDate(0, 0, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	copies := f.w.Rows(workerday.NewQuery().WithParents(lonely.ID))
	require.Len(t, copies, 1)
	assert.Equal(t, workerday.SourceCopyApproved, copies[0].Source)
	assert.False(t, copies[0].IsApproved)

	n, err = f.svc.CopyApproved(f.w.Ctx(), f.w.Admin.ID, workerday.CopyApprovedRequest{DtFrom: testDt, DtTo: testDt.AddDate(0, 0, 3)})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_Duplicate(t *testing.T) {
	f := newFixture(t)
	_, other, _ := f.w.AddEmployee(f.w.Shop.ID, servicetest.EmployeeOpts{})
	src := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(22), To: servicetest.Hours(6)})
	target := testDt.AddDate(0, 0, 7)
	f.w.Put(servicetest.Row{EmployeeID: &other.ID, Dt: target, Type: workerday.TypeHoliday})

	created, err := f.svc.Duplicate(f.w.Ctx(), f.w.Admin.ID, workerday.DuplicateRequest{
		WorkerDayIDs: []int64{src.ID},
		ToEmployeeID: &other.ID,
		TargetDates:  []time.Time{target},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)

	wd := created[0]
	assert.Equal(t, other.ID, *wd.EmployeeID)
	assert.Equal(t, f.w.At(target, 22, 0), *wd.DttmWorkStart)
	assert.Equal(t, f.w.At(target.AddDate(0, 0, 1), 6, 0), *wd.DttmWorkEnd)
	assert.Equal(t, workerday.SourceDuplicate, wd.Source)

	drafts := f.w.Rows(workerday.NewQuery().ForEmployees(other.ID).OnDates(target).Draft())
	require.Len(t, drafts, 1)
	assert.Equal(t, workerday.TypeWorkday, drafts[0].Type)
}

func TestService_Get(t *testing.T) {
	f := newFixture(t)
	approved := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: testDt, From: servicetest.Hours(9), To: servicetest.Hours(18), IsApproved: true})

	got, err := f.svc.Get(f.w.Ctx(), f.emp.ID, testDt, false, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, approved.ID, got.ID)

	got, err = f.svc.Get(f.w.Ctx(), f.emp.ID, testDt, true, true)
	require.NoError(t, err)
	assert.Nil(t, got)
}
