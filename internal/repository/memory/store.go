// Package memory is an in-process implementation of every repository. It
// backs the service and handler tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cmlabs-hris/timetable-core/internal/domain/attendance"
	"github.com/cmlabs-hris/timetable-core/internal/domain/calendar"
	"github.com/cmlabs-hris/timetable-core/internal/domain/forecast"
	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/permission"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

type monthKey struct {
	shopID int64
	month  time.Time
}

type tables struct {
	nextID int64

	workerDays map[int64]workerday.WorkerDay

	networks      map[int64]org.Network
	connects      []org.NetworkConnect
	shops         map[int64]org.Shop
	workTypes     map[int64]org.WorkType
	workTypeNames map[int64]org.WorkTypeName
	opTypes       map[int64]org.OperationType
	exchange      []org.ExchangeSettings
	blacklist     map[int64][]string
	monthStats    map[monthKey]org.ShopMonthStat

	users       map[int64]staff.User
	employees   map[int64]staff.Employee
	employments []staff.Employment
	positions   map[int64]staff.Position
	groups      map[int64]staff.Group

	permissions []permission.GroupWorkerDayPermission
	records     []attendance.Record
	forecasts   []forecast.PeriodClients
	calendar    []calendar.ProductionDay
	timesheets  map[int64][]timesheet.Item
	tasks       map[uuid.UUID]task.Task
	events      map[uuid.UUID]notification.Event
}

func newTables() *tables {
	return &tables{
		workerDays:    make(map[int64]workerday.WorkerDay),
		networks:      make(map[int64]org.Network),
		shops:         make(map[int64]org.Shop),
		workTypes:     make(map[int64]org.WorkType),
		workTypeNames: make(map[int64]org.WorkTypeName),
		opTypes:       make(map[int64]org.OperationType),
		blacklist:     make(map[int64][]string),
		monthStats:    make(map[monthKey]org.ShopMonthStat),
		users:         make(map[int64]staff.User),
		employees:     make(map[int64]staff.Employee),
		positions:     make(map[int64]staff.Position),
		groups:        make(map[int64]staff.Group),
		timesheets:    make(map[int64][]timesheet.Item),
		tasks:         make(map[uuid.UUID]task.Task),
		events:        make(map[uuid.UUID]notification.Event),
	}
}

// snapshot copies the tables a transaction may write. Reference data
// (shops, staff, permissions) is replaced wholesale by the seed helpers and
// never mutated in place, so a shallow copy is enough for it.
func (t *tables) snapshot() *tables {
	c := *t
	c.workerDays = make(map[int64]workerday.WorkerDay, len(t.workerDays))
	for id, wd := range t.workerDays {
		c.workerDays[id] = wd.Clone()
	}
	c.networks = maps.Clone(t.networks)
	c.connects = slices.Clone(t.connects)
	c.shops = maps.Clone(t.shops)
	c.workTypes = maps.Clone(t.workTypes)
	c.workTypeNames = maps.Clone(t.workTypeNames)
	c.opTypes = maps.Clone(t.opTypes)
	c.exchange = slices.Clone(t.exchange)
	c.blacklist = maps.Clone(t.blacklist)
	c.monthStats = maps.Clone(t.monthStats)
	c.users = maps.Clone(t.users)
	c.employees = maps.Clone(t.employees)
	c.employments = slices.Clone(t.employments)
	c.positions = maps.Clone(t.positions)
	c.groups = maps.Clone(t.groups)
	c.permissions = slices.Clone(t.permissions)
	c.records = slices.Clone(t.records)
	c.forecasts = slices.Clone(t.forecasts)
	c.calendar = slices.Clone(t.calendar)
	c.timesheets = make(map[int64][]timesheet.Item, len(t.timesheets))
	for id, items := range t.timesheets {
		c.timesheets[id] = slices.Clone(items)
	}
	c.tasks = maps.Clone(t.tasks)
	c.events = maps.Clone(t.events)
	return &c
}

// Store holds all tables behind one lock. Transactions are serialized and
// roll back by restoring a snapshot. Readers outside a transaction may
// observe writes of a transaction that has not finished yet.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *tables
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{data: newTables(), now: time.Now}
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// WithinTx implements database.Transactor. Nested calls join the outer
// transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.data.snapshot()
	s.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

func (s *Store) restore(snap *tables) {
	s.mu.Lock()
	s.data = snap
	s.mu.Unlock()
}

// read runs fn with the tables locked.
func (s *Store) read(fn func(t *tables)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// write runs fn with the tables locked. Writes outside a transaction are
// serialized against running transactions.
func (s *Store) write(ctx context.Context, fn func(t *tables) error) error {
	if !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (t *tables) id() int64 {
	t.nextID++
	return t.nextID
}

func (s *Store) WorkerDays() *WorkerDayRepository   { return &WorkerDayRepository{s: s} }
func (s *Store) Org() *OrgRepository                { return &OrgRepository{s: s} }
func (s *Store) Staff() *StaffRepository            { return &StaffRepository{s: s} }
func (s *Store) Permissions() *PermissionRepository { return &PermissionRepository{s: s} }
func (s *Store) Attendance() *AttendanceRepository  { return &AttendanceRepository{s: s} }
func (s *Store) Forecasts() *ForecastRepository     { return &ForecastRepository{s: s} }
func (s *Store) Calendar() *CalendarRepository      { return &CalendarRepository{s: s} }
func (s *Store) Timesheets() *TimesheetRepository   { return &TimesheetRepository{s: s} }
func (s *Store) Tasks() *TaskRepository             { return &TaskRepository{s: s} }
func (s *Store) Events() *NotificationRepository    { return &NotificationRepository{s: s} }
