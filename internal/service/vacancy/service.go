package vacancy

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/forecast"
	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/vacancy"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/metrics"
	wdsvc "github.com/cmlabs-hris/timetable-core/internal/service/workerday"
)

// mergeGap joins vacancies of one layer that are closer than this.
const mergeGap = 4 * time.Hour

type service struct {
	tx      database.Transactor
	days    workerday.Repository
	org     org.Repository
	staff   staff.Repository
	demand  forecast.Source
	tasks   task.Scheduler
	events  notification.Publisher
	metrics *metrics.Metrics
	hours   *wdsvc.HoursCalculator
	now     func() time.Time
}

func NewVacancyService(
	tx database.Transactor,
	days workerday.Repository,
	orgRepo org.Repository,
	staffRepo staff.Repository,
	demand forecast.Source,
	tasks task.Scheduler,
	events notification.Publisher,
	m *metrics.Metrics,
) vacancy.Service {
	return &service{
		tx:      tx,
		days:    days,
		org:     orgRepo,
		staff:   staffRepo,
		demand:  demand,
		tasks:   tasks,
		events:  events,
		metrics: m,
		hours:   wdsvc.NewHoursCalculator(orgRepo, staffRepo),
		now:     time.Now,
	}
}

func (s *service) CreateVacanciesAndNotify(ctx context.Context, req vacancy.CreateRequest) (vacancy.CreateResult, error) {
	dtFrom, dtTo := dateRange(req.DtFrom, req.DtTo)

	var result vacancy.CreateResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		result = vacancy.CreateResult{}
		shop, settings, err := s.shopWorkType(ctx, req.ShopID, req.WorkTypeID)
		if err != nil {
			return err
		}

		rows, err := s.coverage(ctx, shop.ID, []int64{req.WorkTypeID}, dtFrom, dtTo, true, true)
		if err != nil {
			return err
		}
		from, to := window(shop, dtFrom, dtTo)
		lack, err := s.lackTable(ctx, shop, []int64{req.WorkTypeID}, from, to, rows)
		if err != nil {
			return err
		}

		gap := int(mergeGap / lack.Step)
		for _, layer := range StackedRuns(lack.Values, settings.AutomaticCreateVacancyLackMin, gap) {
			for _, run := range layer {
				whole := Interval{Start: lack.At(run.From), End: lack.At(run.To)}
				for _, piece := range SliceInterval(whole, settings.WorkingShiftMinHours, settings.WorkingShiftMaxHours) {
					piece, ok := clampToShop(shop, piece)
					if !ok {
						continue
					}
					v, err := s.createVacancy(ctx, shop, settings, req.WorkTypeID, piece)
					if err != nil {
						return err
					}
					result.Created = append(result.Created, v.ID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return vacancy.CreateResult{}, err
	}
	s.metrics.VacancyCreated(strconv.FormatInt(req.ShopID, 10), len(result.Created))
	return result, nil
}

func (s *service) CancelVacancies(ctx context.Context, req vacancy.CancelRequest) (vacancy.CancelResult, error) {
	dtFrom, dtTo := dateRange(req.DtFrom, req.DtTo)

	var result vacancy.CancelResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		result = vacancy.CancelResult{}
		shop, settings, err := s.shopWorkType(ctx, req.ShopID, req.WorkTypeID)
		if err != nil {
			return err
		}

		rows, err := s.coverage(ctx, shop.ID, []int64{req.WorkTypeID}, dtFrom, dtTo, req.Approved, true)
		if err != nil {
			return err
		}
		from, to := window(shop, dtFrom, dtTo)
		overflow, err := s.lackTable(ctx, shop, []int64{req.WorkTypeID}, from, to, rows)
		if err != nil {
			return err
		}
		for i, v := range overflow.Values {
			overflow.Values[i] = min(max(-v, -1), 1)
		}

		vacancies, err := s.days.ListForUpdate(ctx, workerday.NewQuery().
			ForShops(shop.ID).
			WithWorkTypes(req.WorkTypeID).
			InRange(dtFrom, dtTo).
			Plan().Approved().Vacancies().NotCanceled())
		if err != nil {
			return fmt.Errorf("load vacancies: %w", err)
		}
		sortByStart(vacancies)

		earliest := s.now().Add(settings.AutomaticWorkerSelectTimegap)
		for _, v := range vacancies {
			start, end, ok := v.Interval()
			if !ok || start.Before(earliest) {
				continue
			}
			if 1-overflow.Mean(start, end) >= settings.AutomaticDeleteVacancyLackMax {
				continue
			}
			deleted, err := s.cancelVacancy(ctx, shop, v)
			if err != nil {
				return err
			}
			if deleted {
				result.Deleted = append(result.Deleted, v.ID)
			} else {
				result.Canceled = append(result.Canceled, v.ID)
			}
			overflow.AddInterval(start, end, -v.WorkPart(req.WorkTypeID))
		}
		return nil
	})
	if err != nil {
		return vacancy.CancelResult{}, err
	}
	s.metrics.VacancyCancelled(strconv.FormatInt(req.ShopID, 10), len(result.Deleted)+len(result.Canceled))
	return result, nil
}

func (s *service) shopWorkType(ctx context.Context, shopID, workTypeID int64) (org.Shop, org.ExchangeSettings, error) {
	shop, err := s.org.GetShop(ctx, shopID)
	if err != nil {
		return org.Shop{}, org.ExchangeSettings{}, fmt.Errorf("load shop %d: %w", shopID, err)
	}
	wt, err := s.org.GetWorkType(ctx, workTypeID)
	if err != nil {
		return org.Shop{}, org.ExchangeSettings{}, fmt.Errorf("load work type %d: %w", workTypeID, err)
	}
	if wt.ShopID != shop.ID {
		return org.Shop{}, org.ExchangeSettings{}, workerday.InvariantViolation("work type %d does not belong to shop %d", workTypeID, shopID)
	}
	settings, err := s.settings(ctx, shop)
	if err != nil {
		return org.Shop{}, org.ExchangeSettings{}, err
	}
	return shop, settings, nil
}

func (s *service) settings(ctx context.Context, shop org.Shop) (org.ExchangeSettings, error) {
	records, err := s.org.ListExchangeSettings(ctx, shop.NetworkID)
	if err != nil {
		return org.ExchangeSettings{}, fmt.Errorf("load exchange settings of network %d: %w", shop.NetworkID, err)
	}
	return org.ResolveExchangeSettings(records, shop.ID), nil
}

// coverage loads the plan rows staffing workTypeIDs in the shop. With
// approved false, drafts stand in for the approved rows of their slot.
// Night shifts of the previous day are included.
func (s *service) coverage(ctx context.Context, shopID int64, workTypeIDs []int64, dtFrom, dtTo time.Time, approved, openVacancies bool) ([]workerday.WorkerDay, error) {
	q := workerday.NewQuery().
		ForShops(shopID).
		WithWorkTypes(workTypeIDs...).
		InRange(dtFrom.AddDate(0, 0, -1), dtTo).
		Plan().NotCanceled()
	rows, err := s.days.List(ctx, q.Approved())
	if err != nil {
		return nil, fmt.Errorf("load approved coverage: %w", err)
	}
	if !openVacancies {
		rows = slices.DeleteFunc(rows, workerday.WorkerDay.IsOpenVacancy)
	}
	if approved {
		return rows, nil
	}

	drafts, err := s.days.List(ctx, q.Draft())
	if err != nil {
		return nil, fmt.Errorf("load draft coverage: %w", err)
	}
	replaced := wdsvc.SlotSet{}
	replaced.Add(drafts...)
	out := slices.Clone(drafts)
	for _, wd := range rows {
		if slot, ok := wd.Slot(); ok {
			if _, has := replaced[slot]; has {
				continue
			}
		}
		out = append(out, wd)
	}
	return out, nil
}

// lackTable computes need minus coverage per period of [from, to).
func (s *service) lackTable(ctx context.Context, shop org.Shop, workTypeIDs []int64, from, to time.Time, rows []workerday.WorkerDay) (*Table, error) {
	table := NewTable(from, to, shop.Step())
	ops, err := s.org.ListOperationTypes(ctx, workTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("load operation types: %w", err)
	}
	if len(ops) > 0 {
		ids := make([]int64, 0, len(ops))
		speed := make(map[int64]float64, len(ops))
		for _, op := range ops {
			ids = append(ids, op.ID)
			speed[op.ID] = op.SpeedCoef
		}
		items, err := s.demand.List(ctx, ids, from, to, forecast.LongForecast)
		if err != nil {
			return nil, workerday.ExternalTransient(fmt.Errorf("load forecast of shop %d: %w", shop.ID, err))
		}
		table.AddNeed(items, speed, shop.Absenteeism)
	}

	wanted := make(map[int64]bool, len(workTypeIDs))
	for _, id := range workTypeIDs {
		wanted[id] = true
	}
	table.Cover(rows, wanted)
	return table, nil
}

func (s *service) createVacancy(ctx context.Context, shop org.Shop, settings org.ExchangeSettings, workTypeID int64, in Interval) (workerday.WorkerDay, error) {
	v := workerday.WorkerDay{
		ShopID:        workerday.Ptr(shop.ID),
		Dt:            dates.LocalDate(in.Start, shop.Location()),
		Type:          workerday.TypeWorkday,
		DttmWorkStart: workerday.Ptr(in.Start),
		DttmWorkEnd:   workerday.Ptr(in.End),
		IsApproved:    true,
		IsVacancy:     true,
		IsOutsource:   len(settings.Outsources) > 0,
		Outsources:    slices.Clone(settings.Outsources),
		Details:       []workerday.Detail{{WorkTypeID: workTypeID, WorkPart: 1}},
		Source:        workerday.SourceAutoVacancy,
	}
	hours, err := s.hours.WorkHours(ctx, v)
	if err != nil {
		return workerday.WorkerDay{}, err
	}
	v.WorkHours = hours
	if err := v.CheckShape(); err != nil {
		return workerday.WorkerDay{}, err
	}
	if err := s.days.Create(ctx, &v); err != nil {
		return workerday.WorkerDay{}, fmt.Errorf("create vacancy: %w", err)
	}
	return v, s.publish(ctx, notification.CodeVacancyCreated, v, shop.NetworkID, nil, nil)
}

// cancelVacancy deletes an untaken system vacancy outright. Any other
// vacancy is marked cancelled; a former owner gets the day off instead.
func (s *service) cancelVacancy(ctx context.Context, shop org.Shop, v workerday.WorkerDay) (bool, error) {
	if v.EmployeeID == nil {
		if v.Source == workerday.SourceAutoVacancy {
			if err := s.days.Delete(ctx, []int64{v.ID}); err != nil {
				return false, fmt.Errorf("delete vacancy %d: %w", v.ID, err)
			}
			return true, s.publish(ctx, notification.CodeVacancyDeleted, v, shop.NetworkID, nil, nil)
		}
		v.Canceled = true
		if err := s.days.Update(ctx, &v); err != nil {
			return false, fmt.Errorf("cancel vacancy %d: %w", v.ID, err)
		}
		return false, s.publish(ctx, notification.CodeVacancyDeleted, v, shop.NetworkID, nil, nil)
	}

	owner := *v.EmployeeID
	if err := s.dropDrafts(ctx, v.ID); err != nil {
		return false, err
	}
	v.Canceled = true
	v.EmployeeID = nil
	v.EmploymentID = nil
	if err := s.days.Update(ctx, &v); err != nil {
		return false, fmt.Errorf("cancel vacancy %d: %w", v.ID, err)
	}
	if err := s.giveHoliday(ctx, owner, v.Dt, workerday.SourceOnCancelVacancy); err != nil {
		return false, err
	}
	if err := wdsvc.ScheduleRelink(ctx, s.tasks, []workerday.WorkerDay{{EmployeeID: &owner, Dt: v.Dt}}, false); err != nil {
		return false, err
	}
	return false, s.publish(ctx, notification.CodeEmployeeVacancyDeleted, v, shop.NetworkID, nil, &owner)
}

// dropDrafts deletes the draft copies of an approved row.
func (s *service) dropDrafts(ctx context.Context, approvedID int64) error {
	drafts, err := s.days.ListForUpdate(ctx, workerday.NewQuery().WithParents(approvedID))
	if err != nil {
		return fmt.Errorf("load drafts of %d: %w", approvedID, err)
	}
	if len(drafts) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(drafts))
	for _, d := range drafts {
		ids = append(ids, d.ID)
	}
	if err := s.days.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete drafts of %d: %w", approvedID, err)
	}
	return nil
}

// giveHoliday makes sure the employee has an approved HOLIDAY plan on dt
// with a draft twin, unless some approved plan already occupies the day.
func (s *service) giveHoliday(ctx context.Context, employeeID int64, dt time.Time, source workerday.Source) error {
	rows, err := s.days.ListForUpdate(ctx, workerday.NewQuery().ForEmployees(employeeID).OnDates(dt).Plan())
	if err != nil {
		return fmt.Errorf("load plans of employee %d: %w", employeeID, err)
	}
	var approved, draft *workerday.WorkerDay
	for i := range rows {
		if rows[i].IsApproved {
			approved = &rows[i]
		} else {
			draft = &rows[i]
		}
	}

	if approved == nil {
		holiday := workerday.WorkerDay{
			EmployeeID: workerday.Ptr(employeeID),
			Dt:         dt,
			Type:       workerday.TypeHoliday,
			IsApproved: true,
			Source:     source,
		}
		if err := s.hours.Fill(ctx, &holiday); err != nil {
			return err
		}
		if err := s.days.Create(ctx, &holiday); err != nil {
			return fmt.Errorf("create holiday: %w", err)
		}
		approved = &holiday
	}

	if draft == nil {
		d := workerday.DraftOf(*approved, source)
		if err := s.days.Create(ctx, &d); err != nil {
			return fmt.Errorf("create holiday draft: %w", err)
		}
		return nil
	}
	if !workerday.EqualPtr(draft.ParentWorkerDayID, &approved.ID) {
		draft.ParentWorkerDayID = workerday.Ptr(approved.ID)
		if err := s.days.Update(ctx, draft); err != nil {
			return fmt.Errorf("relink draft %d: %w", draft.ID, err)
		}
	}
	return nil
}

func (s *service) publish(ctx context.Context, code notification.Code, v workerday.WorkerDay, networkID int64, authorID, employeeID *int64) error {
	payload := notification.WorkerDayContext(v)
	if employeeID != nil {
		payload["employee_id"] = *employeeID
	}
	return s.events.Publish(ctx, notification.Event{
		NetworkID: networkID,
		Code:      code,
		AuthorID:  authorID,
		ShopID:    v.ShopID,
		Context:   payload,
	})
}

// dateRange defaults an empty or inverted end to the start date.
func dateRange(from, to time.Time) (time.Time, time.Time) {
	if to.IsZero() || to.Before(from) {
		to = from
	}
	return from, to
}

// window returns the absolute instants covering the dates in the shop zone.
func window(shop org.Shop, dtFrom, dtTo time.Time) (time.Time, time.Time) {
	loc := shop.Location()
	return dates.At(dtFrom, 0, loc), dates.At(dtTo.AddDate(0, 0, 1), 0, loc)
}

func clampToShop(shop org.Shop, in Interval) (Interval, bool) {
	open, shut, ok := shop.WorkingWindow(dates.LocalDate(in.Start, shop.Location()))
	if !ok {
		return Interval{}, false
	}
	return Clamp(in, open, shut)
}

func sortByStart(rows []workerday.WorkerDay) {
	slices.SortFunc(rows, func(a, b workerday.WorkerDay) int {
		if c := a.DttmWorkStart.Compare(*b.DttmWorkStart); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
