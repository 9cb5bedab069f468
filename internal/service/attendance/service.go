package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/attendance"
	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	wdsvc "github.com/cmlabs-hris/timetable-core/internal/service/workerday"
)

type service struct {
	tx      database.Transactor
	records attendance.Repository
	days    workerday.Repository
	org     org.Repository
	staff   staff.Repository
	hours   *wdsvc.HoursCalculator
	linker  *wdsvc.Linker
	tasks   task.Scheduler
	events  notification.Publisher
	now     func() time.Time
}

func NewAttendanceService(
	tx database.Transactor,
	records attendance.Repository,
	days workerday.Repository,
	orgRepo org.Repository,
	staffRepo staff.Repository,
	tasks task.Scheduler,
	events notification.Publisher,
) attendance.Service {
	hours := wdsvc.NewHoursCalculator(orgRepo, staffRepo)
	return &service{
		tx:      tx,
		records: records,
		days:    days,
		org:     orgRepo,
		staff:   staffRepo,
		hours:   hours,
		linker:  wdsvc.NewLinker(days, orgRepo, hours),
		tasks:   tasks,
		events:  events,
		now:     time.Now,
	}
}

// Ingest stores the record and schedules reconciliation of the day it
// belongs to. Terminal records whose employee cannot be resolved yet
// reconcile the whole shop day.
func (s *service) Ingest(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	if rec.Type != attendance.Coming && rec.Type != attendance.Leaving {
		return attendance.Record{}, attendance.ErrInvalidRecordType
	}
	shop, err := s.org.GetShop(ctx, rec.ShopID)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("load shop %d: %w", rec.ShopID, err)
	}
	dt := dates.LocalDate(rec.Dttm, shop.Location())

	employeeID := rec.EmployeeID
	if employeeID == nil {
		resolved, err := s.resolveEmployee(ctx, rec.UserID, rec.ShopID, dt)
		if err != nil {
			return attendance.Record{}, err
		}
		employeeID = resolved
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.records.Create(ctx, &rec); err != nil {
			return fmt.Errorf("store attendance record: %w", err)
		}
		payload := task.ReconcilePayload{}
		if employeeID != nil {
			payload.EmployeeDates = []task.EmployeeDate{{EmployeeID: *employeeID, Dt: dt}}
		} else {
			payload.ShopIDs = []int64{rec.ShopID}
			payload.DtFrom, payload.DtTo = &dt, &dt
		}
		return s.tasks.Schedule(ctx, task.KindReconcileFact, payload, nil)
	})
	if err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}

// resolveEmployee maps a terminal user to the employee whose employment is
// active on dt, preferring one in shopID.
func (s *service) resolveEmployee(ctx context.Context, userID, shopID int64, dt time.Time) (*int64, error) {
	emps, err := s.staff.ListEmployments(ctx, staff.EmploymentFilter{
		UserIDs: []int64{userID},
		DtFrom:  &dt,
		DtTo:    &dt,
	})
	if err != nil {
		return nil, fmt.Errorf("load employments of user %d: %w", userID, err)
	}
	emp, ok := staff.PickEmployment(emps, dt, &shopID, nil)
	if !ok {
		return nil, nil
	}
	return workerday.Ptr(emp.EmployeeID), nil
}

type shopCache struct {
	repo  org.Repository
	shops map[int64]org.Shop
}

func newShopCache(repo org.Repository) *shopCache {
	return &shopCache{repo: repo, shops: make(map[int64]org.Shop)}
}

func (c *shopCache) get(ctx context.Context, id int64) (org.Shop, error) {
	if shop, ok := c.shops[id]; ok {
		return shop, nil
	}
	shop, err := c.repo.GetShop(ctx, id)
	if err != nil {
		return org.Shop{}, fmt.Errorf("load shop %d: %w", id, err)
	}
	c.shops[id] = shop
	return shop, nil
}
