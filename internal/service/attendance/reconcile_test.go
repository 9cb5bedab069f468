package attendance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/timetable-core/internal/domain/attendance"
	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	notifsvc "github.com/cmlabs-hris/timetable-core/internal/service/notification"
	"github.com/cmlabs-hris/timetable-core/internal/service/servicetest"
)

var day = dates.Date(2024, 3, 4)

type fixture struct {
	w    *servicetest.World
	svc  attendance.Service
	user staff.User
	emp  staff.Employee
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w := servicetest.New(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	user, emp, _ := w.AddEmployee(w.Shop.ID, servicetest.EmployeeOpts{WorkTypes: []int64{w.WorkType.ID}})
	svc := NewAttendanceService(w.Store, w.Store.Attendance(), w.Store.WorkerDays(), w.Store.Org(), w.Store.Staff(), w.Outbox, notifsvc.NewPublisher(w.Outbox))
	svc.(*service).now = func() time.Time { return w.Now }
	return &fixture{w: w, svc: svc, user: user, emp: emp}
}

func (f *fixture) scan(empID *int64, userID int64, hh, mm int, typ attendance.RecordType) {
	f.w.Store.AddRecord(attendance.Record{
		UserID:     userID,
		ShopID:     f.w.Shop.ID,
		EmployeeID: empID,
		Dttm:       f.w.At(day, hh, mm),
		Type:       typ,
		Terminal:   empID == nil,
	})
}

func (f *fixture) byEmployee() attendance.Scope {
	return attendance.Scope{EmployeeDates: []attendance.EmployeeDate{{EmployeeID: f.emp.ID, Dt: day}}}
}

func (f *fixture) events(code notification.Code) []notification.Event {
	var out []notification.Event
	for _, tk := range f.w.Pending(task.KindPublishEvent) {
		var p task.PublishEventPayload
		require.NoError(f.w.T, json.Unmarshal(tk.Payload, &p))
		if p.Event.Code == code {
			out = append(out, p.Event)
		}
	}
	return out
}

func TestBuildShift(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC) }
	rec := func(h, m int, typ attendance.RecordType) attendance.Record {
		return attendance.Record{ShopID: 1, Dttm: at(h, m), Type: typ}
	}
	closeAt := func(int64) (time.Time, bool) { return at(22, 0), true }

	tests := []struct {
		name       string
		records    []attendance.Record
		complete   bool
		start, end time.Time
		checkedOut bool
	}{
		{
			name:       "pair",
			records:    []attendance.Record{rec(7, 58, attendance.Coming), rec(20, 5, attendance.Leaving)},
			complete:   true,
			start:      at(7, 58),
			end:        at(20, 5),
			checkedOut: true,
		},
		{
			name:       "leading leaving ignored",
			records:    []attendance.Record{rec(6, 0, attendance.Leaving), rec(8, 0, attendance.Coming), rec(12, 0, attendance.Leaving)},
			complete:   true,
			start:      at(8, 0),
			end:        at(12, 0),
			checkedOut: true,
		},
		{
			name: "two shifts merge",
			records: []attendance.Record{
				rec(8, 0, attendance.Coming), rec(12, 0, attendance.Leaving),
				rec(13, 0, attendance.Coming), rec(17, 0, attendance.Leaving),
			},
			complete:   true,
			start:      at(8, 0),
			end:        at(17, 0),
			checkedOut: true,
		},
		{
			name:       "dangling coming runs to close",
			records:    []attendance.Record{rec(9, 0, attendance.Coming)},
			complete:   true,
			start:      at(9, 0),
			end:        at(22, 0),
			checkedOut: false,
		},
		{
			name:       "only leaving",
			records:    []attendance.Record{rec(18, 0, attendance.Leaving)},
			complete:   false,
			checkedOut: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh := buildShift(tt.records, closeAt)
			assert.Equal(t, tt.complete, sh.complete)
			assert.Equal(t, tt.checkedOut, sh.checkedOut)
			if tt.complete {
				assert.Equal(t, tt.start, sh.start)
				assert.Equal(t, tt.end, sh.end)
			}
		})
	}
}

func TestReconcile_MergesScansAndPairsPlan(t *testing.T) {
	f := newFixture(t)
	plan := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: day, From: servicetest.Hours(8), To: servicetest.Hours(20), IsApproved: true})
	f.scan(&f.emp.ID, f.user.ID, 7, 58, attendance.Coming)
	f.scan(&f.emp.ID, f.user.ID, 20, 5, attendance.Leaving)

	result, err := f.svc.Reconcile(f.w.Ctx(), f.byEmployee())
	require.NoError(t, err)
	assert.Equal(t, attendance.Result{Created: 1}, result)

	facts := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Fact().Approved())
	require.Len(t, facts, 1)
	fact := facts[0]
	assert.True(t, f.w.At(day, 7, 58).Equal(*fact.DttmWorkStart))
	assert.True(t, f.w.At(day, 20, 5).Equal(*fact.DttmWorkEnd))
	require.NotNil(t, fact.ClosestPlanApprovedID)
	assert.Equal(t, plan.ID, *fact.ClosestPlanApprovedID)
	assert.Equal(t, plan.Details, fact.Details)
	assert.Equal(t, 12*time.Hour+7*time.Minute, fact.WorkHours)

	drafts := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Fact().Draft())
	require.Len(t, drafts, 1)
	require.NotNil(t, drafts[0].ParentWorkerDayID)
	assert.Equal(t, fact.ID, *drafts[0].ParentWorkerDayID)

	again, err := f.svc.Reconcile(f.w.Ctx(), f.byEmployee())
	require.NoError(t, err)
	assert.Equal(t, attendance.Result{}, again)

	rerun := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Fact())
	require.Len(t, rerun, 2)
	assert.ElementsMatch(t, []int64{fact.ID, drafts[0].ID}, []int64{rerun[0].ID, rerun[1].ID})
}

func TestReconcile_OneFactPerEmployeeDate(t *testing.T) {
	f := newFixture(t)
	f.scan(&f.emp.ID, f.user.ID, 8, 0, attendance.Coming)
	f.scan(&f.emp.ID, f.user.ID, 12, 0, attendance.Leaving)
	f.scan(&f.emp.ID, f.user.ID, 13, 0, attendance.Coming)
	f.scan(&f.emp.ID, f.user.ID, 17, 0, attendance.Leaving)

	result, err := f.svc.Reconcile(f.w.Ctx(), f.byEmployee())
	require.NoError(t, err)
	assert.Equal(t, attendance.Result{Created: 1}, result)

	facts := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Fact().Approved())
	require.Len(t, facts, 1, "the lunch break does not split the day")
	assert.True(t, f.w.At(day, 8, 0).Equal(*facts[0].DttmWorkStart))
	assert.True(t, f.w.At(day, 17, 0).Equal(*facts[0].DttmWorkEnd))
	assert.Len(t, f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Fact().Draft()), 1)
}

func TestReconcile_ResolvesTerminalUser(t *testing.T) {
	f := newFixture(t)
	f.scan(nil, f.user.ID, 9, 0, attendance.Coming)
	f.scan(nil, f.user.ID, 18, 0, attendance.Leaving)

	result, err := f.svc.Reconcile(f.w.Ctx(), f.byEmployee())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	facts := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Fact().Approved())
	require.Len(t, facts, 1)
	assert.Nil(t, facts[0].ClosestPlanApprovedID)
	assert.Empty(t, facts[0].Details)
}

func TestReconcile_KeepsManualFacts(t *testing.T) {
	f := newFixture(t)
	manual := f.w.Put(servicetest.Row{EmployeeID: &f.emp.ID, Dt: day, From: servicetest.Hours(9), To: servicetest.Hours(18), IsApproved: true, IsFact: true, Manual: true})
	f.scan(&f.emp.ID, f.user.ID, 7, 58, attendance.Coming)
	f.scan(&f.emp.ID, f.user.ID, 20, 5, attendance.Leaving)

	result, err := f.svc.Reconcile(f.w.Ctx(), f.byEmployee())
	require.NoError(t, err)
	assert.Equal(t, attendance.Result{}, result)

	facts := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Fact())
	require.Len(t, facts, 1)
	assert.Equal(t, manual.ID, facts[0].ID)
	assert.True(t, f.w.At(day, 9, 0).Equal(*facts[0].DttmWorkStart))
}

func TestReconcile_ShopRangeDeletesStaleFactsAndReports(t *testing.T) {
	f := newFixture(t)
	_, absent, _ := f.w.AddEmployee(f.w.Shop.ID, servicetest.EmployeeOpts{})
	_, stale, _ := f.w.AddEmployee(f.w.Shop.ID, servicetest.EmployeeOpts{})

	f.w.Put(servicetest.Row{EmployeeID: &absent.ID, Dt: day, From: servicetest.Hours(9), To: servicetest.Hours(18), IsApproved: true})
	f.w.Put(servicetest.Row{EmployeeID: &stale.ID, Dt: day, From: servicetest.Hours(9), To: servicetest.Hours(18), IsApproved: true, IsFact: true, Source: workerday.SourceFactFromAttendance})
	f.scan(&f.emp.ID, f.user.ID, 9, 0, attendance.Coming)

	result, err := f.svc.Reconcile(f.w.Ctx(), attendance.Scope{ShopIDs: []int64{f.w.Shop.ID}, DtFrom: &day, DtTo: &day})
	require.NoError(t, err)
	assert.Equal(t, attendance.Result{Created: 1, Deleted: 1}, result)

	assert.Empty(t, f.w.Rows(workerday.NewQuery().ForEmployees(stale.ID).Fact()))

	facts := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Fact().Approved())
	require.Len(t, facts, 1)
	assert.True(t, f.w.At(day.AddDate(0, 0, 1), 0, 0).Equal(*facts[0].DttmWorkEnd))

	checkedOut := f.events(notification.CodeEmployeeNotCheckedOut)
	require.Len(t, checkedOut, 1)
	assert.EqualValues(t, f.emp.ID, checkedOut[0].Context["employee_id"])

	checkedIn := f.events(notification.CodeEmployeeNotCheckedIn)
	require.Len(t, checkedIn, 1)
	assert.EqualValues(t, absent.ID, checkedIn[0].Context["employee_id"])

	_, err = f.svc.Reconcile(f.w.Ctx(), attendance.Scope{ShopIDs: []int64{f.w.Shop.ID}, DtFrom: &day, DtTo: &day})
	require.NoError(t, err)
	rerun := f.events(notification.CodeEmployeeNotCheckedIn)
	require.Len(t, rerun, 2)
	assert.Equal(t, rerun[0].ID, rerun[1].ID)
}

func TestReconcile_EmptyScope(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reconcile(f.w.Ctx(), attendance.Scope{ShopIDs: []int64{f.w.Shop.ID}})
	assert.ErrorIs(t, err, attendance.ErrEmptyScope)
}

func TestIngest_SchedulesReconcile(t *testing.T) {
	f := newFixture(t)
	f.w.Dispatcher.Register(task.KindReconcileFact, ReconcileHandler(f.svc))

	_, err := f.svc.Ingest(f.w.Ctx(), attendance.Record{UserID: f.user.ID, ShopID: f.w.Shop.ID, Dttm: f.w.At(day, 8, 0), Type: attendance.Coming, Terminal: true})
	require.NoError(t, err)
	_, err = f.svc.Ingest(f.w.Ctx(), attendance.Record{UserID: f.user.ID, ShopID: f.w.Shop.ID, EmployeeID: &f.emp.ID, Dttm: f.w.At(day, 17, 0), Type: attendance.Leaving})
	require.NoError(t, err)

	pending := f.w.Pending(task.KindReconcileFact)
	require.Len(t, pending, 2)
	var p task.ReconcilePayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &p))
	require.Len(t, p.EmployeeDates, 1)
	assert.Equal(t, f.emp.ID, p.EmployeeDates[0].EmployeeID)

	f.w.Drain()

	facts := f.w.Rows(workerday.NewQuery().ForEmployees(f.emp.ID).Fact().Approved())
	require.Len(t, facts, 1)
	assert.Equal(t, 9*time.Hour, facts[0].WorkHours)

	_, err = f.svc.Ingest(f.w.Ctx(), attendance.Record{UserID: f.user.ID, ShopID: f.w.Shop.ID, Type: "LUNCH"})
	assert.ErrorIs(t, err, attendance.ErrInvalidRecordType)
}
