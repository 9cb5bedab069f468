package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/timetable-core/internal/domain/calendar"
	"github.com/cmlabs-hris/timetable-core/internal/domain/forecast"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

type forecastRepository struct {
	db *database.DB
}

func NewForecastRepository(db *database.DB) forecast.Source {
	return &forecastRepository{db: db}
}

func (r *forecastRepository) List(ctx context.Context, operationTypeIDs []int64, from, to time.Time, kind forecast.Kind) ([]forecast.PeriodClients, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT operation_type_id, dttm_forecast, value, type
		FROM period_clients
		WHERE operation_type_id = ANY($1)
		  AND dttm_forecast >= $2 AND dttm_forecast < $3
		  AND type = $4
		ORDER BY dttm_forecast, operation_type_id
	`, operationTypeIDs, from, to, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query period clients: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (forecast.PeriodClients, error) {
		var (
			pc   forecast.PeriodClients
			kind string
		)
		err := row.Scan(&pc.OperationTypeID, &pc.DttmForecast, &pc.Value, &kind)
		pc.Type = forecast.Kind(kind)
		return pc, err
	})
}

type calendarRepository struct {
	db *database.DB
}

func NewCalendarRepository(db *database.DB) calendar.Repository {
	return &calendarRepository{db: db}
}

func (r *calendarRepository) ListProductionDays(ctx context.Context, region string, from, to time.Time) ([]calendar.ProductionDay, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT dt, region, type
		FROM production_days
		WHERE region = $1 AND dt BETWEEN $2 AND $3
		ORDER BY dt
	`, region, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query production days: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (calendar.ProductionDay, error) {
		var (
			d       calendar.ProductionDay
			dayType string
		)
		err := row.Scan(&d.Dt, &d.Region, &dayType)
		d.Type = calendar.DayType(dayType)
		return d, err
	})
}
