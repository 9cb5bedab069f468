// Package servicetest builds small in-memory organizations for service
// tests: one network, a shop with a work type, an admin allowed to do
// everything, and helpers for staff and schedule rows.
package servicetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/permission"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	"github.com/cmlabs-hris/timetable-core/internal/repository/memory"
	permsvc "github.com/cmlabs-hris/timetable-core/internal/service/permission"
	tasksvc "github.com/cmlabs-hris/timetable-core/internal/service/task"
)

type World struct {
	T     testing.TB
	Store *memory.Store
	Now   time.Time

	Network      org.Network
	Shop         org.Shop
	WorkTypeName org.WorkTypeName
	WorkType     org.WorkType

	AdminGroup staff.Group
	Admin      staff.User

	Outbox     *tasksvc.Outbox
	Dispatcher *tasksvc.Dispatcher
	Checker    permission.Checker
}

// New builds a world whose clock reads now. The default shop is open
// around the clock in UTC.
func New(t testing.TB, now time.Time) *World {
	t.Helper()
	w := &World{T: t, Store: memory.NewStore(), Now: now}
	clock := func() time.Time { return w.Now }
	w.Store.SetClock(clock)

	w.Network = w.Store.AddNetwork(org.Network{Name: "network", Settings: org.DefaultNetworkSettings()})
	w.Shop = w.AddShop("shop")
	w.WorkTypeName = w.Store.AddWorkTypeName(org.WorkTypeName{NetworkID: w.Network.ID, Name: "Cashier", Code: "cashier"})
	w.WorkType = w.Store.AddWorkType(org.WorkType{ShopID: w.Shop.ID, WorkTypeNameID: w.WorkTypeName.ID})

	w.AdminGroup = w.Store.AddGroup(staff.Group{NetworkID: w.Network.ID, Name: "admins", CanChangeProtected: true})
	w.GrantAll(w.AdminGroup.ID)
	w.Admin, _, _ = w.AddEmployee(w.Shop.ID, EmployeeOpts{GroupID: &w.AdminGroup.ID})

	w.Outbox = tasksvc.NewOutbox(w.Store.Tasks(), 3)
	w.Outbox.SetClock(clock)
	w.Dispatcher = tasksvc.NewDispatcher(w.Store.Tasks(), tasksvc.Config{Workers: 1}, nil)
	w.Dispatcher.SetClock(clock)
	w.Checker = permsvc.NewCheckerWithClock(w.Store.Permissions(), w.Store.Staff(), w.Store.Org(), clock)
	return w
}

func (w *World) Ctx() context.Context {
	return context.Background()
}

// UpdateNetwork replaces the network settings.
func (w *World) UpdateNetwork(fn func(s *org.NetworkSettings)) {
	fn(&w.Network.Settings)
	w.Store.AddNetwork(w.Network)
}

func (w *World) AddShop(name string, opts ...func(*org.Shop)) org.Shop {
	shop := org.Shop{NetworkID: w.Network.ID, Name: name, ForecastStep: 30 * time.Minute}
	for _, opt := range opts {
		opt(&shop)
	}
	return w.Store.AddShop(shop)
}

// AddWorkType binds the world's work type name to shopID.
func (w *World) AddWorkType(shopID int64) org.WorkType {
	return w.Store.AddWorkType(org.WorkType{ShopID: shopID, WorkTypeNameID: w.WorkTypeName.ID})
}

// GrantAll allows the group every action on every day type in its network.
func (w *World) GrantAll(groupID int64) {
	actions := []permission.Action{permission.ActionCreate, permission.ActionUpdate, permission.ActionDelete, permission.ActionApprove}
	for _, action := range actions {
		for _, graph := range []workerday.GraphType{workerday.GraphPlan, workerday.GraphFact} {
			for _, wdType := range workerday.Types() {
				w.Store.AddPermission(permission.GroupWorkerDayPermission{
					GroupID:           groupID,
					Action:            action,
					GraphType:         graph,
					WDType:            wdType,
					EmployeeType:      permission.EmployeeMyNetwork,
					ShopType:          permission.ShopMyNetwork,
					AllowApproveFirst: true,
				})
			}
		}
	}
}

type EmployeeOpts struct {
	NetworkID  int64
	GroupID    *int64
	PositionID *int64
	Hired      *time.Time
	Fired      *time.Time
	WorkTypes  []int64
	Symbol     *string
}

// AddEmployee creates a user, their employee and one employment in shopID.
func (w *World) AddEmployee(shopID int64, opts EmployeeOpts) (staff.User, staff.Employee, staff.Employment) {
	networkID := opts.NetworkID
	if networkID == 0 {
		networkID = w.Network.ID
	}
	user := w.Store.AddUser(staff.User{NetworkID: networkID, BlackListSymbol: opts.Symbol})
	emp := w.Store.AddEmployee(staff.Employee{UserID: user.ID})

	var workTypes []staff.EmploymentWorkType
	for i, id := range opts.WorkTypes {
		workTypes = append(workTypes, staff.EmploymentWorkType{WorkTypeID: id, Priority: len(opts.WorkTypes) - i})
	}
	employment := w.Store.AddEmployment(staff.Employment{
		EmployeeID:      emp.ID,
		ShopID:          shopID,
		PositionID:      opts.PositionID,
		FunctionGroupID: opts.GroupID,
		DtHired:         opts.Hired,
		DtFired:         opts.Fired,
		NormWorkHours:   100,
		WorkTypes:       workTypes,
	})
	return user, emp, employment
}

// At returns the instant hh:mm on dt in the default shop's zone.
func (w *World) At(dt time.Time, hh, mm int) time.Time {
	return dates.At(dt, time.Duration(hh)*time.Hour+time.Duration(mm)*time.Minute, w.Shop.Location())
}

// Row describes a schedule row for Put.
type Row struct {
	EmployeeID *int64
	ShopID     int64
	WorkTypeID int64
	Dt         time.Time
	Type       workerday.Type
	From, To   [2]int
	IsFact     bool
	IsApproved bool
	IsVacancy  bool
	WorkHours  time.Duration
	Source     workerday.Source
	Manual     bool
	ParentID   *int64
}

// Put stores a row directly, bypassing the services. Time-ranged rows
// default to the world's shop and work type.
func (w *World) Put(r Row) workerday.WorkerDay {
	if r.Type == "" {
		r.Type = workerday.TypeWorkday
	}
	wd := workerday.WorkerDay{
		EmployeeID:        r.EmployeeID,
		Dt:                r.Dt,
		Type:              r.Type,
		IsFact:            r.IsFact,
		IsApproved:        r.IsApproved,
		IsVacancy:         r.IsVacancy,
		Source:            r.Source,
		ParentWorkerDayID: r.ParentID,
		WorkHours:         r.WorkHours,
	}
	if wd.Source == "" {
		wd.Source = workerday.SourceManual
	}
	if r.Manual {
		wd.LastEditedByID = workerday.Ptr(w.Admin.ID)
	}
	if r.Type.IsTimeRanged() {
		shopID := r.ShopID
		if shopID == 0 {
			shopID = w.Shop.ID
		}
		workTypeID := r.WorkTypeID
		if workTypeID == 0 {
			workTypeID = w.WorkType.ID
		}
		start := w.At(r.Dt, r.From[0], r.From[1])
		end := w.At(r.Dt, r.To[0], r.To[1])
		if !end.After(start) {
			end = end.Add(dates.Day)
		}
		wd.ShopID = &shopID
		wd.DttmWorkStart = &start
		wd.DttmWorkEnd = &end
		wd.Details = []workerday.Detail{{WorkTypeID: workTypeID, WorkPart: 1}}
		if wd.WorkHours == 0 {
			wd.WorkHours = end.Sub(start)
		}
	}
	return w.Store.AddWorkerDay(wd)
}

// Rows lists rows matching q, failing the test on error.
func (w *World) Rows(q workerday.Query) []workerday.WorkerDay {
	rows, err := w.Store.WorkerDays().List(w.Ctx(), q)
	require.NoError(w.T, err)
	return rows
}

// Drain runs every due outbox task.
func (w *World) Drain() {
	require.NoError(w.T, w.Dispatcher.Drain(w.Ctx()))
}

// Pending lists queued tasks of kind.
func (w *World) Pending(kind task.Kind) []task.Task {
	tasks, err := w.Store.Tasks().ListByStatus(w.Ctx(), task.StatusPending, 0)
	require.NoError(w.T, err)
	var out []task.Task
	for _, tk := range tasks {
		if tk.Kind == kind {
			out = append(out, tk)
		}
	}
	return out
}

func Hours(h int) [2]int { return [2]int{h, 0} }
