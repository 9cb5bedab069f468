package cron

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/vacancy"
)

// ShopScanner opens and cancels vacancies across every shop.
type ShopScanner interface {
	ScanAll(ctx context.Context) error
}

// VacancySchedule configures when the vacancy jobs fire.
type VacancySchedule struct {
	ScanInterval        time.Duration
	HolidayExchangeSpec string
	WorkerExchangeSpec  string
}

// VacancyJobs contains vacancy-related cron jobs
type VacancyJobs struct {
	scanner   ShopScanner
	vacancies vacancy.Service
	orgRepo   org.Repository
}

// NewVacancyJobs creates vacancy cron jobs
func NewVacancyJobs(scanner ShopScanner, vacancies vacancy.Service, orgRepo org.Repository) *VacancyJobs {
	return &VacancyJobs{
		scanner:   scanner,
		vacancies: vacancies,
		orgRepo:   orgRepo,
	}
}

// RegisterJobs registers all vacancy-related cron jobs
func (j *VacancyJobs) RegisterJobs(scheduler *Scheduler, cfg VacancySchedule) error {
	// Compare demand with coverage for every shop
	scheduler.AddJob("vacancy_scan", cfg.ScanInterval, j.ScanVacancies)

	if err := scheduler.AddCronJob("holiday_exchange", cfg.HolidayExchangeSpec, j.HolidayExchange); err != nil {
		return err
	}
	// Shift elongation runs first so only vacancies it could not absorb
	// are offered to other shops
	return scheduler.AddCronJob("worker_exchange", cfg.WorkerExchangeSpec, j.WorkerExchange)
}

func (j *VacancyJobs) ScanVacancies(ctx context.Context) error {
	return j.scanner.ScanAll(ctx)
}

// HolidayExchange pulls employees off their holidays into open vacancies
func (j *VacancyJobs) HolidayExchange(ctx context.Context) error {
	return j.eachNetwork(ctx, func(ctx context.Context, networkID int64) error {
		_, err := j.vacancies.HolidayExchange(ctx, networkID)
		return err
	})
}

// WorkerExchange elongates shifts, then moves overstaffed workers between shops
func (j *VacancyJobs) WorkerExchange(ctx context.Context) error {
	return j.eachNetwork(ctx, func(ctx context.Context, networkID int64) error {
		if _, err := j.vacancies.ShiftElongation(ctx, networkID); err != nil {
			return err
		}
		_, err := j.vacancies.WorkerExchange(ctx, networkID)
		return err
	})
}

// eachNetwork runs fn for every network owning a live shop. One failing
// network does not stop the others.
func (j *VacancyJobs) eachNetwork(ctx context.Context, fn func(ctx context.Context, networkID int64) error) error {
	shops, err := j.orgRepo.ListShops(ctx, org.ShopFilter{})
	if err != nil {
		return err
	}
	var networks []int64
	for _, s := range shops {
		networks = append(networks, s.NetworkID)
	}
	slices.Sort(networks)

	var errs []error
	for _, id := range slices.Compact(networks) {
		if err := fn(ctx, id); err != nil {
			slog.Error("Cron: network job failed", "network_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
