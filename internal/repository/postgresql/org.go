package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

type orgRepository struct {
	db *database.DB
}

func NewOrgRepository(db *database.DB) org.Repository {
	return &orgRepository{db: db}
}

func (r *orgRepository) GetNetwork(ctx context.Context, id int64) (org.Network, error) {
	q := GetQuerier(ctx, r.db)

	var (
		n                           org.Network
		delta, nightStart, nightEnd int64
	)
	err := q.QueryRow(ctx, `
		SELECT id, name, closest_plan_delta_seconds, night_start_seconds, night_end_seconds,
			timesheet_strategy, recalc_fact_work_hours_on_approve,
			allow_own_staff_on_outsource_vacancy, require_employment_for_workdays
		FROM networks
		WHERE id = $1
	`, id).Scan(
		&n.ID, &n.Name, &delta, &nightStart, &nightEnd,
		&n.Settings.TimesheetStrategy, &n.Settings.RecalcFactWorkHoursOnApprove,
		&n.Settings.AllowOwnStaffOnOutsourceVacancy, &n.Settings.RequireEmploymentForWorkdays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return org.Network{}, org.ErrNetworkNotFound
		}
		return org.Network{}, fmt.Errorf("failed to get network: %w", err)
	}
	n.Settings.ClosestPlanDelta = seconds(delta)
	n.Settings.NightStart = seconds(nightStart)
	n.Settings.NightEnd = seconds(nightEnd)
	return n, nil
}

func (r *orgRepository) ListNetworkConnects(ctx context.Context, networkID int64) ([]org.NetworkConnect, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT client_id, outsourcing_id
		FROM network_connects
		WHERE client_id = $1 OR outsourcing_id = $1
		ORDER BY client_id, outsourcing_id
	`, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to query network connects: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (org.NetworkConnect, error) {
		var c org.NetworkConnect
		err := row.Scan(&c.ClientID, &c.OutsourcingID)
		return c, err
	})
}

const shopColumns = `
	id, parent_id, network_id, code, name, tz_offset_minutes, schedule, break_policy,
	exchange_shop_ids, absenteeism, forecast_step_seconds, region, deleted_at`

// openHoursDoc is the stored form of one weekday of a shop schedule.
type openHoursDoc struct {
	OpenSeconds  int64 `json:"open_seconds"`
	CloseSeconds int64 `json:"close_seconds"`
}

type breakRuleDoc struct {
	MinMinutes   int `json:"min_minutes"`
	MaxMinutes   int `json:"max_minutes"`
	BreakMinutes int `json:"break_minutes"`
}

func scanShop(row pgx.Row) (org.Shop, error) {
	var (
		s                       org.Shop
		scheduleJSON, breakJSON []byte
		step                    int64
	)
	err := row.Scan(
		&s.ID, &s.ParentID, &s.NetworkID, &s.Code, &s.Name, &s.TZOffsetMinutes,
		&scheduleJSON, &breakJSON, &s.ExchangeShopIDs, &s.Absenteeism, &step, &s.Region, &s.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return org.Shop{}, org.ErrShopNotFound
		}
		return org.Shop{}, fmt.Errorf("failed to scan shop: %w", err)
	}
	s.ForecastStep = seconds(step)

	if scheduleJSON != nil {
		var doc map[time.Weekday]openHoursDoc
		if err := json.Unmarshal(scheduleJSON, &doc); err != nil {
			return org.Shop{}, fmt.Errorf("failed to unmarshal shop schedule: %w", err)
		}
		s.Schedule = make(map[time.Weekday]org.OpenHours, len(doc))
		for day, h := range doc {
			s.Schedule[day] = org.OpenHours{Open: seconds(h.OpenSeconds), Close: seconds(h.CloseSeconds)}
		}
	}
	policy, err := decodeBreakPolicy(breakJSON)
	if err != nil {
		return org.Shop{}, err
	}
	s.BreakPolicy = policy
	return s, nil
}

func decodeBreakPolicy(raw []byte) (org.BreakPolicy, error) {
	if raw == nil {
		return nil, nil
	}
	var doc []breakRuleDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal break policy: %w", err)
	}
	policy := make(org.BreakPolicy, len(doc))
	for i, d := range doc {
		policy[i] = org.BreakRule{MinMinutes: d.MinMinutes, MaxMinutes: d.MaxMinutes, BreakMinutes: d.BreakMinutes}
	}
	return policy, nil
}

func (r *orgRepository) GetShop(ctx context.Context, id int64) (org.Shop, error) {
	q := GetQuerier(ctx, r.db)
	return scanShop(q.QueryRow(ctx, "SELECT "+shopColumns+" FROM shops WHERE id = $1", id))
}

func (r *orgRepository) ListShops(ctx context.Context, filter org.ShopFilter) ([]org.Shop, error) {
	q := GetQuerier(ctx, r.db)

	w := &where{}
	if !filter.IncludeDeleted {
		w.add("deleted_at IS NULL")
	}
	if len(filter.IDs) > 0 {
		w.add("id = ANY(?)", filter.IDs)
	}
	if filter.NetworkID != nil {
		w.add("network_id = ?", *filter.NetworkID)
	}

	rows, err := q.Query(ctx, fmt.Sprintf("SELECT %s FROM shops WHERE %s ORDER BY id", shopColumns, w), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shops: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (org.Shop, error) {
		return scanShop(row)
	})
}

func (r *orgRepository) GetWorkType(ctx context.Context, id int64) (org.WorkType, error) {
	q := GetQuerier(ctx, r.db)

	var wt org.WorkType
	err := q.QueryRow(ctx, `
		SELECT id, shop_id, work_type_name_id, deleted_at
		FROM work_types
		WHERE id = $1
	`, id).Scan(&wt.ID, &wt.ShopID, &wt.WorkTypeNameID, &wt.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return org.WorkType{}, org.ErrWorkTypeNotFound
		}
		return org.WorkType{}, fmt.Errorf("failed to get work type: %w", err)
	}
	return wt, nil
}

func (r *orgRepository) ListWorkTypes(ctx context.Context, shopIDs []int64) ([]org.WorkType, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT id, shop_id, work_type_name_id, deleted_at
		FROM work_types
		WHERE shop_id = ANY($1) AND deleted_at IS NULL
		ORDER BY id
	`, shopIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query work types: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (org.WorkType, error) {
		var wt org.WorkType
		err := row.Scan(&wt.ID, &wt.ShopID, &wt.WorkTypeNameID, &wt.DeletedAt)
		return wt, err
	})
}

func (r *orgRepository) ListOperationTypes(ctx context.Context, workTypeIDs []int64) ([]org.OperationType, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT id, work_type_id, speed_coef
		FROM operation_types
		WHERE work_type_id = ANY($1)
		ORDER BY id
	`, workTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation types: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (org.OperationType, error) {
		var op org.OperationType
		err := row.Scan(&op.ID, &op.WorkTypeID, &op.SpeedCoef)
		return op, err
	})
}

// exchangeSettingsDoc is the JSONB form of the tunable part of
// org.ExchangeSettings. Durations are stored in seconds.
type exchangeSettingsDoc struct {
	AutomaticCheckLack                  bool    `json:"automatic_check_lack"`
	AutomaticCheckLackTimegap           int64   `json:"automatic_check_lack_timegap"`
	AutomaticCreateVacancyLackMin       float64 `json:"automatic_create_vacancy_lack_min"`
	AutomaticDeleteVacancyLackMax       float64 `json:"automatic_delete_vacancy_lack_max"`
	AutomaticWorkerSelectTimegap        int64   `json:"automatic_worker_select_timegap"`
	AutomaticHolidayWorkerSelectTimegap int64   `json:"automatic_holiday_worker_select_timegap"`
	AutomaticWorkerSelectOverflowMin    float64 `json:"automatic_worker_select_overflow_min"`
	WorkingShiftMinHours                int64   `json:"working_shift_min_hours"`
	WorkingShiftMaxHours                int64   `json:"working_shift_max_hours"`
	MaxWorkingHours                     int64   `json:"max_working_hours"`
	Outsources                          []int64 `json:"outsources"`
	ExcludedPositionIDs                 []int64 `json:"excluded_position_ids"`
	TwoDayBeforeMaxHours                float64 `json:"two_day_before_max_hours"`
	TwoDayAfterMaxHours                 float64 `json:"two_day_after_max_hours"`
	OneDayBeforeMaxHours                float64 `json:"one_day_before_max_hours"`
	OneDayAfterMaxHours                 float64 `json:"one_day_after_max_hours"`
	RequirePublishedMonth               bool    `json:"require_published_month"`
}

func (d exchangeSettingsDoc) settings() org.ExchangeSettings {
	return org.ExchangeSettings{
		AutomaticCheckLack:                  d.AutomaticCheckLack,
		AutomaticCheckLackTimegap:           seconds(d.AutomaticCheckLackTimegap),
		AutomaticCreateVacancyLackMin:       d.AutomaticCreateVacancyLackMin,
		AutomaticDeleteVacancyLackMax:       d.AutomaticDeleteVacancyLackMax,
		AutomaticWorkerSelectTimegap:        seconds(d.AutomaticWorkerSelectTimegap),
		AutomaticHolidayWorkerSelectTimegap: seconds(d.AutomaticHolidayWorkerSelectTimegap),
		AutomaticWorkerSelectOverflowMin:    d.AutomaticWorkerSelectOverflowMin,
		WorkingShiftMinHours:                seconds(d.WorkingShiftMinHours),
		WorkingShiftMaxHours:                seconds(d.WorkingShiftMaxHours),
		MaxWorkingHours:                     seconds(d.MaxWorkingHours),
		Outsources:                          d.Outsources,
		ExcludedPositionIDs:                 d.ExcludedPositionIDs,
		Constraints: org.HolidayExchangeConstraints{
			TwoDayBeforeMaxHours: d.TwoDayBeforeMaxHours,
			TwoDayAfterMaxHours:  d.TwoDayAfterMaxHours,
			OneDayBeforeMaxHours: d.OneDayBeforeMaxHours,
			OneDayAfterMaxHours:  d.OneDayAfterMaxHours,
		},
		RequirePublishedMonth: d.RequirePublishedMonth,
	}
}

func (r *orgRepository) ListExchangeSettings(ctx context.Context, networkID int64) ([]org.ExchangeSettings, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT id, network_id, shop_ids, settings
		FROM exchange_settings
		WHERE network_id = $1
		ORDER BY id
	`, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange settings: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (org.ExchangeSettings, error) {
		var (
			id, network int64
			shopIDs     []int64
			raw         []byte
		)
		if err := row.Scan(&id, &network, &shopIDs, &raw); err != nil {
			return org.ExchangeSettings{}, err
		}
		doc := exchangeSettingsDoc{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return org.ExchangeSettings{}, fmt.Errorf("failed to unmarshal exchange settings %d: %w", id, err)
		}
		es := doc.settings()
		es.ID, es.NetworkID = id, network
		if len(shopIDs) > 0 {
			es.ShopIDs = shopIDs
		}
		return es, nil
	})
}

func (r *orgRepository) IsBlacklisted(ctx context.Context, symbol string, shopIDs []int64) (bool, error) {
	q := GetQuerier(ctx, r.db)

	var hit bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM shop_blacklist WHERE symbol = $1 AND shop_id = ANY($2))
	`, symbol, shopIDs).Scan(&hit)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return hit, nil
}

func (r *orgRepository) GetShopMonthStat(ctx context.Context, shopID int64, month time.Time) (org.ShopMonthStat, error) {
	q := GetQuerier(ctx, r.db)

	var st org.ShopMonthStat
	err := q.QueryRow(ctx, `
		SELECT shop_id, month, is_approved, approved_at
		FROM shop_month_stats
		WHERE shop_id = $1 AND month = $2
	`, shopID, month).Scan(&st.ShopID, &st.Month, &st.IsApproved, &st.ApprovedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return org.ShopMonthStat{}, org.ErrShopMonthStatNotFound
		}
		return org.ShopMonthStat{}, fmt.Errorf("failed to get shop month stat: %w", err)
	}
	return st, nil
}

func (r *orgRepository) MarkShopMonthApproved(ctx context.Context, shopID int64, month time.Time, at time.Time) error {
	q := GetQuerier(ctx, r.db)

	_, err := q.Exec(ctx, `
		INSERT INTO shop_month_stats (shop_id, month, is_approved, approved_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (shop_id, month) DO UPDATE SET is_approved = TRUE, approved_at = EXCLUDED.approved_at
	`, shopID, month, at)
	if err != nil {
		return fmt.Errorf("failed to mark shop month approved: %w", err)
	}
	return nil
}

func seconds(s int64) time.Duration {
	return time.Duration(s) * time.Second
}
