package memory

import (
	"context"
	"slices"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/calendar"
	"github.com/cmlabs-hris/timetable-core/internal/domain/forecast"
)

type ForecastRepository struct {
	s *Store
}

func (r *ForecastRepository) List(ctx context.Context, operationTypeIDs []int64, from, to time.Time, kind forecast.Kind) ([]forecast.PeriodClients, error) {
	var out []forecast.PeriodClients
	r.s.read(func(t *tables) {
		for _, pc := range t.forecasts {
			if pc.Type != kind || !slices.Contains(operationTypeIDs, pc.OperationTypeID) {
				continue
			}
			if pc.DttmForecast.Before(from) || !pc.DttmForecast.Before(to) {
				continue
			}
			out = append(out, pc)
		}
	})
	slices.SortStableFunc(out, func(a, b forecast.PeriodClients) int { return a.DttmForecast.Compare(b.DttmForecast) })
	return out, nil
}

type CalendarRepository struct {
	s *Store
}

func (r *CalendarRepository) ListProductionDays(ctx context.Context, region string, from, to time.Time) ([]calendar.ProductionDay, error) {
	var out []calendar.ProductionDay
	r.s.read(func(t *tables) {
		for _, d := range t.calendar {
			if d.Region == region && !d.Dt.Before(from) && !d.Dt.After(to) {
				out = append(out, d)
			}
		}
	})
	slices.SortFunc(out, func(a, b calendar.ProductionDay) int { return a.Dt.Compare(b.Dt) })
	return out, nil
}
