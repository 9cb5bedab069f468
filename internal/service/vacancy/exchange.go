package vacancy

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/vacancy"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	wdsvc "github.com/cmlabs-hris/timetable-core/internal/service/workerday"
)

func (s *service) HolidayExchange(ctx context.Context, networkID int64) (vacancy.ExchangeResult, error) {
	shops, err := s.networkShops(ctx, networkID)
	if err != nil {
		return vacancy.ExchangeResult{}, err
	}

	var result vacancy.ExchangeResult
	for _, shop := range shops {
		st, err := s.settings(ctx, shop)
		if err != nil {
			return result, err
		}
		vacancies, err := s.openVacancies(ctx, shop, st, s.now().Add(st.AutomaticHolidayWorkerSelectTimegap))
		if err != nil {
			return result, err
		}
		for _, v := range vacancies {
			c, ok, err := s.holidayCandidate(ctx, shop, st, v)
			if err != nil {
				return result, err
			}
			if !ok {
				continue
			}
			req := vacancy.ConfirmRequest{
				VacancyID:  v.ID,
				UserID:     c.userID,
				EmployeeID: c.employeeID,
				Source:     workerday.SourceHolidayExchange,
			}
			filled, err := s.confirmQuietly(ctx, req, notification.CodeHolidayExchange)
			if err != nil {
				return result, err
			}
			if filled {
				result.Filled = append(result.Filled, v.ID)
			}
		}
	}
	slog.Info("Holiday exchange finished", "network_id", networkID, "filled", len(result.Filled))
	return result, nil
}

type candidate struct {
	employeeID int64
	userID     int64
	tier       int
	hours      time.Duration
}

func (s *service) holidayCandidate(ctx context.Context, shop org.Shop, st org.ExchangeSettings, v workerday.WorkerDay) (candidate, bool, error) {
	peers := append([]int64{shop.ID}, shop.ExchangeShopIDs...)
	emps, err := s.staff.ListEmployments(ctx, staff.EmploymentFilter{ShopIDs: peers, DtFrom: &v.Dt, DtTo: &v.Dt})
	if err != nil {
		return candidate{}, false, fmt.Errorf("load employments of shops %v: %w", peers, err)
	}
	var employeeIDs []int64
	for _, e := range staff.ActiveOn(emps, v.Dt) {
		if e.PositionID != nil && slices.Contains(st.ExcludedPositionIDs, *e.PositionID) {
			continue
		}
		employeeIDs = append(employeeIDs, e.EmployeeID)
	}
	slices.Sort(employeeIDs)
	employeeIDs = slices.Compact(employeeIDs)
	if len(employeeIDs) == 0 {
		return candidate{}, false, nil
	}

	rows, err := s.days.List(ctx, workerday.NewQuery().
		ForEmployees(employeeIDs...).
		InRange(v.Dt.AddDate(0, 0, -3), v.Dt.AddDate(0, 0, 3)).
		Plan().Approved())
	if err != nil {
		return candidate{}, false, fmt.Errorf("load plans around %s: %w", dates.Format(v.Dt), err)
	}
	byEmployee := make(map[int64]map[time.Time][]workerday.WorkerDay)
	for _, wd := range rows {
		if wd.EmployeeID == nil {
			continue
		}
		if byEmployee[*wd.EmployeeID] == nil {
			byEmployee[*wd.EmployeeID] = make(map[time.Time][]workerday.WorkerDay)
		}
		byEmployee[*wd.EmployeeID][wd.Dt] = append(byEmployee[*wd.EmployeeID][wd.Dt], wd)
	}
	hours, err := s.days.SumPlanHours(ctx, employeeIDs, dates.MonthStart(v.Dt), dates.MonthEnd(v.Dt))
	if err != nil {
		return candidate{}, false, fmt.Errorf("sum plan hours: %w", err)
	}

	var best *candidate
	for _, id := range employeeIDs {
		plan := byEmployee[id]
		if !slices.ContainsFunc(plan[v.Dt], func(wd workerday.WorkerDay) bool { return wd.Type == workerday.TypeHoliday }) {
			continue
		}
		if st.MaxWorkingHours > 0 && hours[id]+v.WorkHours > st.MaxWorkingHours {
			continue
		}
		tier := holidayTier(plan, v.Dt, st.Constraints)
		if tier < 0 {
			continue
		}
		c := candidate{employeeID: id, tier: tier, hours: hours[id]}
		if best == nil || compareCandidates(c, *best) < 0 {
			best = &c
		}
	}
	if best == nil {
		return candidate{}, false, nil
	}
	employee, err := s.staff.GetEmployee(ctx, best.employeeID)
	if err != nil {
		return candidate{}, false, fmt.Errorf("load employee %d: %w", best.employeeID, err)
	}
	best.userID = employee.UserID
	return *best, true, nil
}

func compareCandidates(a, b candidate) int {
	if c := cmp.Compare(a.tier, b.tier); c != 0 {
		return c
	}
	if c := cmp.Compare(a.hours, b.hours); c != 0 {
		return c
	}
	return cmp.Compare(a.employeeID, b.employeeID)
}

// holidayTier ranks how little pulling the employee out of their dayoff
// run around dt hurts, 0 being best. -1 means the employee must be left alone.
func holidayTier(plan map[time.Time][]workerday.WorkerDay, dt time.Time, c org.HolidayExchangeConstraints) int {
	dayoff := func(d time.Time) bool {
		rows := plan[d]
		return len(rows) > 0 && !slices.ContainsFunc(rows, func(wd workerday.WorkerDay) bool { return !wd.Type.IsDayoff() })
	}
	hoursOn := func(d time.Time) float64 {
		var total time.Duration
		for _, wd := range plan[d] {
			total += wd.WorkHours
		}
		return total.Hours()
	}

	first, last := dt, dt
	for i := 0; i < 2 && dayoff(first.AddDate(0, 0, -1)); i++ {
		first = first.AddDate(0, 0, -1)
	}
	for i := 0; i < 2 && dayoff(last.AddDate(0, 0, 1)); i++ {
		last = last.AddDate(0, 0, 1)
	}
	n := int(last.Sub(first)/dates.Day) + 1
	before, after := hoursOn(first.AddDate(0, 0, -1)), hoursOn(last.AddDate(0, 0, 1))

	switch {
	case n >= 4:
		return 0
	case n == 3 && (first.Equal(dt) || last.Equal(dt)):
		return 1
	case n == 2 && before <= c.TwoDayBeforeMaxHours && after <= c.TwoDayAfterMaxHours:
		return 2
	case n == 1 && before <= c.OneDayBeforeMaxHours && after <= c.OneDayAfterMaxHours:
		return 3
	}
	return -1
}

func (s *service) ShiftElongation(ctx context.Context, networkID int64) (vacancy.ExchangeResult, error) {
	shops, err := s.networkShops(ctx, networkID)
	if err != nil {
		return vacancy.ExchangeResult{}, err
	}

	var result vacancy.ExchangeResult
	for _, shop := range shops {
		st, err := s.settings(ctx, shop)
		if err != nil {
			return result, err
		}
		names, err := s.workTypeNames(ctx, shop.ID)
		if err != nil {
			return result, err
		}
		vacancies, err := s.openVacancies(ctx, shop, st, s.now().Add(st.AutomaticWorkerSelectTimegap))
		if err != nil {
			return result, err
		}
		for _, v := range vacancies {
			shift, ok, err := s.elongationCandidate(ctx, shop, st, names, v)
			if err != nil {
				return result, err
			}
			if !ok {
				continue
			}
			err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
				return s.elongate(ctx, shop, v.ID, shift)
			})
			if skippable(err) {
				slog.Warn("Shift elongation skipped", "vacancy_id", v.ID, "worker_day_id", shift.ID, "error", err)
				continue
			}
			if err != nil {
				return result, err
			}
			result.Filled = append(result.Filled, v.ID)
		}
	}
	slog.Info("Shift elongation finished", "network_id", networkID, "filled", len(result.Filled))
	return result, nil
}

func (s *service) elongationCandidate(ctx context.Context, shop org.Shop, st org.ExchangeSettings, names map[int64]int64, v workerday.WorkerDay) (workerday.WorkerDay, bool, error) {
	if len(v.Details) == 0 {
		return workerday.WorkerDay{}, false, nil
	}
	name := names[v.Details[0].WorkTypeID]
	rows, err := s.days.List(ctx, workerday.NewQuery().
		ForShops(shop.ID).
		OnDates(v.Dt).
		OfTypes(workerday.TypeWorkday).
		Plan().Approved().Assigned().NotCanceled())
	if err != nil {
		return workerday.WorkerDay{}, false, fmt.Errorf("load shifts of shop %d: %w", shop.ID, err)
	}
	var employeeIDs []int64
	for _, wd := range rows {
		employeeIDs = append(employeeIDs, *wd.EmployeeID)
	}
	hours, err := s.days.SumPlanHours(ctx, employeeIDs, dates.MonthStart(v.Dt), dates.MonthEnd(v.Dt))
	if err != nil {
		return workerday.WorkerDay{}, false, fmt.Errorf("sum plan hours: %w", err)
	}

	vStart, vEnd, _ := v.Interval()
	var (
		best      workerday.WorkerDay
		bestHours time.Duration
		found     bool
	)
	for _, wd := range rows {
		start, end, ok := wd.Interval()
		if !ok || !slices.ContainsFunc(wd.Details, func(d workerday.Detail) bool { return names[d.WorkTypeID] == name }) {
			continue
		}
		if st.WorkingShiftMaxHours > 0 {
			if wd.Length() >= st.WorkingShiftMaxHours || latest(end, vEnd).Sub(earliest(start, vStart)) > st.WorkingShiftMaxHours {
				continue
			}
		}
		h := hours[*wd.EmployeeID]
		if st.MaxWorkingHours > 0 && h+v.WorkHours > st.MaxWorkingHours {
			continue
		}
		if !found || h < bestHours || (h == bestHours && *wd.EmployeeID < *best.EmployeeID) {
			best, bestHours, found = wd, h, true
		}
	}
	return best, found, nil
}

// elongate stretches the draft of shift over the vacancy and cancels it.
func (s *service) elongate(ctx context.Context, shop org.Shop, vacancyID int64, shift workerday.WorkerDay) error {
	v, _, err := s.lockVacancy(ctx, vacancyID)
	if err != nil {
		return err
	}
	if v.EmployeeID != nil {
		return workerday.VacancyUnavailable("vacancy %d is already taken", v.ID)
	}

	drafts, err := s.days.ListForUpdate(ctx, workerday.NewQuery().ForEmployees(*shift.EmployeeID).OnDates(shift.Dt).Plan().Draft())
	if err != nil {
		return fmt.Errorf("load drafts of employee %d: %w", *shift.EmployeeID, err)
	}
	draft := workerday.DraftOf(shift, workerday.SourceShiftElongation)
	if len(drafts) > 0 {
		draft = drafts[0]
		draft.Source = workerday.SourceShiftElongation
	}
	start, end, ok := draft.Interval()
	if !ok {
		start, end, _ = shift.Interval()
	}
	vStart, vEnd, _ := v.Interval()
	draft.DttmWorkStart = workerday.Ptr(earliest(start, vStart))
	draft.DttmWorkEnd = workerday.Ptr(latest(end, vEnd))
	if err := s.hours.Fill(ctx, &draft); err != nil {
		return err
	}
	if err := draft.CheckShape(); err != nil {
		return err
	}
	if draft.ID == 0 {
		err = s.days.Create(ctx, &draft)
	} else {
		err = s.days.Update(ctx, &draft)
	}
	if err != nil {
		return fmt.Errorf("elongate shift of employee %d: %w", *shift.EmployeeID, err)
	}

	if _, err := s.cancelVacancy(ctx, shop, v); err != nil {
		return err
	}
	if err := wdsvc.Verify(ctx, s.days, []workerday.Slot{{EmployeeID: *shift.EmployeeID, Dt: shift.Dt}}); err != nil {
		return err
	}
	return s.publish(ctx, notification.CodeShiftElongation, draft, shop.NetworkID, nil, shift.EmployeeID)
}

type tableKey struct {
	shopID int64
	nameID int64
}

func (s *service) WorkerExchange(ctx context.Context, networkID int64) (vacancy.ExchangeResult, error) {
	shops, err := s.networkShops(ctx, networkID)
	if err != nil {
		return vacancy.ExchangeResult{}, err
	}

	var (
		mu       sync.Mutex
		tables   = make(map[tableKey]*Table)
		names    = make(map[int64]map[int64]int64)
		settings = make(map[int64]org.ExchangeSettings)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, shop := range shops {
		g.Go(func() error {
			st, err := s.settings(gctx, shop)
			if err != nil {
				return err
			}
			byName, err := s.workTypeNames(gctx, shop.ID)
			if err != nil {
				return err
			}
			groups := make(map[int64][]int64)
			for wtID, nameID := range byName {
				groups[nameID] = append(groups[nameID], wtID)
			}
			today := dates.LocalDate(s.now(), shop.Location())
			dtTo := today.AddDate(0, 0, int(st.AutomaticCheckLackTimegap/dates.Day))
			from, to := window(shop, today, dtTo)

			built := make(map[tableKey]*Table, len(groups))
			for nameID, wtIDs := range groups {
				slices.Sort(wtIDs)
				rows, err := s.coverage(gctx, shop.ID, wtIDs, today, dtTo, true, false)
				if err != nil {
					return err
				}
				table, err := s.lackTable(gctx, shop, wtIDs, from, to, rows)
				if err != nil {
					return err
				}
				built[tableKey{shopID: shop.ID, nameID: nameID}] = table
			}

			mu.Lock()
			defer mu.Unlock()
			settings[shop.ID] = st
			names[shop.ID] = byName
			for k, t := range built {
				tables[k] = t
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return vacancy.ExchangeResult{}, err
	}

	var result vacancy.ExchangeResult
	for _, shop := range shops {
		st := settings[shop.ID]
		vacancies, err := s.openVacancies(ctx, shop, st, s.now().Add(st.AutomaticWorkerSelectTimegap))
		if err != nil {
			return result, err
		}
		for _, v := range vacancies {
			if len(v.Details) == 0 {
				continue
			}
			nameID := names[shop.ID][v.Details[0].WorkTypeID]
			lack := tables[tableKey{shopID: shop.ID, nameID: nameID}]
			vStart, vEnd, _ := v.Interval()
			if lack == nil || lack.Mean(vStart, vEnd) <= 0 {
				continue
			}

			wd, home, ok, err := s.exchangeCandidate(ctx, shop, st, v, nameID, names, tables)
			if err != nil {
				return result, err
			}
			if !ok {
				continue
			}
			employee, err := s.staff.GetEmployee(ctx, *wd.EmployeeID)
			if err != nil {
				return result, fmt.Errorf("load employee %d: %w", *wd.EmployeeID, err)
			}
			filled, err := s.confirmQuietly(ctx, vacancy.ConfirmRequest{
				VacancyID:  v.ID,
				UserID:     employee.UserID,
				EmployeeID: employee.ID,
				Exchange:   true,
				Source:     workerday.SourceExchange,
			}, "")
			if err != nil {
				return result, err
			}
			if !filled {
				continue
			}
			result.Filled = append(result.Filled, v.ID)

			part := v.TotalWorkPart()
			lack.AddInterval(vStart, vEnd, -part)
			start, end, _ := wd.Interval()
			home.AddInterval(start, end, wd.TotalWorkPart())
		}
	}
	slog.Info("Worker exchange finished", "network_id", networkID, "filled", len(result.Filled))
	return result, nil
}

// exchangeCandidate finds a same-length shift in a peer shop whose removal
// keeps that shop overstaffed by at least the configured margin.
func (s *service) exchangeCandidate(
	ctx context.Context,
	shop org.Shop,
	st org.ExchangeSettings,
	v workerday.WorkerDay,
	nameID int64,
	names map[int64]map[int64]int64,
	tables map[tableKey]*Table,
) (workerday.WorkerDay, *Table, bool, error) {
	var (
		best      workerday.WorkerDay
		bestTable *Table
		bestLack  float64
		found     bool
	)
	for _, peerID := range shop.ExchangeShopIDs {
		home := tables[tableKey{shopID: peerID, nameID: nameID}]
		if peerID == shop.ID || home == nil {
			continue
		}
		rows, err := s.days.List(ctx, workerday.NewQuery().
			ForShops(peerID).
			OnDates(v.Dt).
			OfTypes(workerday.TypeWorkday).
			Plan().Approved().Assigned().NotVacancies())
		if err != nil {
			return workerday.WorkerDay{}, nil, false, fmt.Errorf("load shifts of shop %d: %w", peerID, err)
		}
		for _, wd := range rows {
			if len(wd.Details) != 1 || names[peerID][wd.Details[0].WorkTypeID] != nameID || wd.Length() != v.Length() {
				continue
			}
			start, end, _ := wd.Interval()
			after := home.Mean(start, end) + wd.Details[0].WorkPart
			if after > -st.AutomaticWorkerSelectOverflowMin {
				continue
			}
			if !found || after < bestLack || (after == bestLack && wd.ID < best.ID) {
				best, bestTable, bestLack, found = wd, home, after, true
			}
		}
	}
	return best, bestTable, found, nil
}

// confirmQuietly confirms in its own transaction. Conflicts that only mean
// the candidate went stale are logged and reported as not filled.
func (s *service) confirmQuietly(ctx context.Context, req vacancy.ConfirmRequest, extra notification.Code) (bool, error) {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.confirm(ctx, req, extra)
		return err
	})
	if skippable(err) {
		slog.Warn("Vacancy candidate skipped", "vacancy_id", req.VacancyID, "employee_id", req.EmployeeID, "error", err)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.metrics.VacancyConfirmed(string(req.Source))
	return true, nil
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func skippable(err error) bool {
	switch workerday.KindOf(err) {
	case workerday.KindVacancyUnavailable, workerday.KindEmploymentInactive,
		workerday.KindWorkTimeOverlap, workerday.KindNoActivePlan:
		return true
	}
	return false
}

func (s *service) networkShops(ctx context.Context, networkID int64) ([]org.Shop, error) {
	shops, err := s.org.ListShops(ctx, org.ShopFilter{NetworkID: &networkID})
	if err != nil {
		return nil, fmt.Errorf("load shops of network %d: %w", networkID, err)
	}
	return shops, nil
}

// workTypeNames maps the shop's work types to their names.
func (s *service) workTypeNames(ctx context.Context, shopID int64) (map[int64]int64, error) {
	wts, err := s.org.ListWorkTypes(ctx, []int64{shopID})
	if err != nil {
		return nil, fmt.Errorf("load work types of shop %d: %w", shopID, err)
	}
	out := make(map[int64]int64, len(wts))
	for _, wt := range wts {
		out[wt.ID] = wt.WorkTypeNameID
	}
	return out, nil
}

// openVacancies lists the shop's unassigned vacancies inside the lack check
// horizon that start no earlier than notBefore.
func (s *service) openVacancies(ctx context.Context, shop org.Shop, st org.ExchangeSettings, notBefore time.Time) ([]workerday.WorkerDay, error) {
	today := dates.LocalDate(s.now(), shop.Location())
	rows, err := s.days.List(ctx, workerday.NewQuery().
		ForShops(shop.ID).
		InRange(today, today.AddDate(0, 0, int(st.AutomaticCheckLackTimegap/dates.Day))).
		Plan().Approved().OpenVacancies())
	if err != nil {
		return nil, fmt.Errorf("load open vacancies of shop %d: %w", shop.ID, err)
	}
	rows = slices.DeleteFunc(rows, func(wd workerday.WorkerDay) bool {
		start, _, ok := wd.Interval()
		return !ok || start.Before(notBefore)
	})
	sortByStart(rows)
	return rows, nil
}
