package vacancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/vacancy"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/lock"
)

const (
	scanLockTTL     = 10 * time.Minute
	scanParallelism = 4
)

// Scanner opens and cancels vacancies for one shop at a time, holding a
// per-shop lock so concurrent workers never scan the same shop.
type Scanner struct {
	svc    vacancy.Service
	org    org.Repository
	locker lock.Locker
	now    func() time.Time
}

func NewScanner(svc vacancy.Service, orgRepo org.Repository, locker lock.Locker) *Scanner {
	return &Scanner{svc: svc, org: orgRepo, locker: locker, now: time.Now}
}

// ScanShop runs create then cancel for workTypeIDs (all of the shop's when
// empty) over [dtFrom, dtTo]. A zero range means today through the lack
// check horizon.
func (sc *Scanner) ScanShop(ctx context.Context, shopID int64, workTypeIDs []int64, dtFrom, dtTo time.Time) error {
	release, err := sc.locker.Acquire(ctx, "vacancy_scan:shop:"+strconv.FormatInt(shopID, 10), scanLockTTL)
	if err != nil {
		return err
	}
	defer release()

	shop, err := sc.org.GetShop(ctx, shopID)
	if err != nil {
		return fmt.Errorf("load shop %d: %w", shopID, err)
	}
	records, err := sc.org.ListExchangeSettings(ctx, shop.NetworkID)
	if err != nil {
		return fmt.Errorf("load exchange settings of network %d: %w", shop.NetworkID, err)
	}
	st := org.ResolveExchangeSettings(records, shop.ID)
	if !st.AutomaticCheckLack {
		slog.Debug("Vacancy scan disabled", "shop_id", shopID)
		return nil
	}
	if dtFrom.IsZero() {
		dtFrom = dates.LocalDate(sc.now(), shop.Location())
		dtTo = dtFrom.AddDate(0, 0, int(st.AutomaticCheckLackTimegap/dates.Day))
	}

	if len(workTypeIDs) == 0 {
		wts, err := sc.org.ListWorkTypes(ctx, []int64{shopID})
		if err != nil {
			return fmt.Errorf("load work types of shop %d: %w", shopID, err)
		}
		for _, wt := range wts {
			if wt.DeletedAt == nil {
				workTypeIDs = append(workTypeIDs, wt.ID)
			}
		}
	}

	for _, wtID := range workTypeIDs {
		created, err := sc.svc.CreateVacanciesAndNotify(ctx, vacancy.CreateRequest{
			ShopID:     shopID,
			WorkTypeID: wtID,
			DtFrom:     dtFrom,
			DtTo:       dtTo,
		})
		if err != nil {
			return fmt.Errorf("create vacancies for work type %d: %w", wtID, err)
		}
		canceled, err := sc.svc.CancelVacancies(ctx, vacancy.CancelRequest{
			ShopID:     shopID,
			WorkTypeID: wtID,
			DtFrom:     dtFrom,
			DtTo:       dtTo,
			Approved:   true,
		})
		if err != nil {
			return fmt.Errorf("cancel vacancies for work type %d: %w", wtID, err)
		}
		slog.Info("Vacancy scan finished",
			"shop_id", shopID,
			"work_type_id", wtID,
			"created", len(created.Created),
			"deleted", len(canceled.Deleted),
			"canceled", len(canceled.Canceled),
		)
	}
	return nil
}

// ScanAll scans every live shop, a few at a time. Shops locked by another
// worker are skipped.
func (sc *Scanner) ScanAll(ctx context.Context) error {
	shops, err := sc.org.ListShops(ctx, org.ShopFilter{})
	if err != nil {
		return fmt.Errorf("load shops: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanParallelism)
	for _, shop := range shops {
		g.Go(func() error {
			err := sc.ScanShop(gctx, shop.ID, nil, time.Time{}, time.Time{})
			switch {
			case errors.Is(err, lock.ErrNotAcquired):
				slog.Debug("Vacancy scan already running", "shop_id", shop.ID)
			case err != nil:
				slog.Error("Vacancy scan failed", "shop_id", shop.ID, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// ScanHandler runs a scheduled vacancy_scan task.
func ScanHandler(sc *Scanner) task.Handler {
	return func(ctx context.Context, t task.Task) error {
		var p task.VacancyScanPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", task.ErrInvalidPayload, err)
		}
		if p.ShopID == 0 {
			return fmt.Errorf("%w: shop_id is required", task.ErrInvalidPayload)
		}
		return sc.ScanShop(ctx, p.ShopID, p.WorkTypeIDs, p.DtFrom, p.DtTo)
	}
}
