package postgresql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

type timesheetRepository struct {
	db *database.DB
}

func NewTimesheetRepository(db *database.DB) timesheet.Repository {
	return &timesheetRepository{db: db}
}

const timesheetColumnCount = 12

func (r *timesheetRepository) ReplaceForEmployeeMonth(ctx context.Context, employeeID int64, month time.Time, items []timesheet.Item) error {
	q := GetQuerier(ctx, r.db)
	from, to := dates.MonthStart(month), dates.MonthEnd(month)

	_, err := q.Exec(ctx, "DELETE FROM timesheet_items WHERE employee_id = $1 AND dt BETWEEN $2 AND $3", employeeID, from, to)
	if err != nil {
		return fmt.Errorf("failed to clear timesheet: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(items))
	valueArgs := make([]interface{}, 0, len(items)*timesheetColumnCount)
	for i, item := range items {
		base := i * timesheetColumnCount
		placeholders := make([]string, timesheetColumnCount)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ", ")+")")
		valueArgs = append(valueArgs,
			employeeID,
			item.Dt,
			string(item.TimesheetType),
			string(item.DayType),
			item.ShopID,
			item.PositionID,
			item.WorkTypeNameID,
			item.DttmWorkStart,
			item.DttmWorkEnd,
			item.DayHours,
			item.NightHours,
			item.Source,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO timesheet_items (
			employee_id, dt, timesheet_type, day_type, shop_id, position_id, work_type_name_id,
			dttm_work_start, dttm_work_end, day_hours, night_hours, source
		)
		VALUES %s
	`, strings.Join(valueStrings, ", "))
	if _, err := q.Exec(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("failed to insert timesheet items: %w", err)
	}
	return nil
}

func (r *timesheetRepository) List(ctx context.Context, employeeID int64, month time.Time) ([]timesheet.Item, error) {
	q := GetQuerier(ctx, r.db)
	from, to := dates.MonthStart(month), dates.MonthEnd(month)

	rows, err := q.Query(ctx, `
		SELECT id, employee_id, dt, timesheet_type, day_type, shop_id, position_id, work_type_name_id,
			dttm_work_start, dttm_work_end, day_hours, night_hours, source
		FROM timesheet_items
		WHERE employee_id = $1 AND dt BETWEEN $2 AND $3
		ORDER BY dt, id
	`, employeeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query timesheet items: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (timesheet.Item, error) {
		var (
			item            timesheet.Item
			tsType, dayType string
		)
		err := row.Scan(&item.ID, &item.EmployeeID, &item.Dt, &tsType, &dayType,
			&item.ShopID, &item.PositionID, &item.WorkTypeNameID,
			&item.DttmWorkStart, &item.DttmWorkEnd, &item.DayHours, &item.NightHours, &item.Source)
		item.TimesheetType = timesheet.Type(tsType)
		item.DayType = workerday.Type(dayType)
		return item, err
	})
}
