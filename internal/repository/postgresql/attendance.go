package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/timetable-core/internal/domain/attendance"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

type attendanceRepository struct {
	db *database.DB
}

func NewAttendanceRepository(db *database.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) Create(ctx context.Context, rec *attendance.Record) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO attendance_records (user_id, shop_id, employee_id, dttm, type, terminal)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := q.QueryRow(ctx, query,
		rec.UserID,
		rec.ShopID,
		rec.EmployeeID,
		rec.Dttm,
		string(rec.Type),
		rec.Terminal,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create attendance record: %w", err)
	}
	return nil
}

// List matches terminal records, which carry no employee, through the
// user owning one of the requested employees.
func (r *attendanceRepository) List(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	q := GetQuerier(ctx, r.db)

	w := &where{}
	w.add("a.dttm >= ?", filter.From)
	w.add("a.dttm < ?", filter.To)
	if len(filter.ShopIDs) > 0 {
		w.add("a.shop_id = ANY(?)", filter.ShopIDs)
	}
	if len(filter.UserIDs) > 0 {
		w.add("a.user_id = ANY(?)", filter.UserIDs)
	}
	if len(filter.EmployeeIDs) > 0 {
		w.add(`(a.employee_id = ANY(?) OR (a.employee_id IS NULL AND a.user_id IN (
			SELECT user_id FROM employees WHERE id = ANY(?))))`, filter.EmployeeIDs, filter.EmployeeIDs)
	}

	query := fmt.Sprintf(`
		SELECT a.id, a.user_id, a.shop_id, a.employee_id, a.dttm, a.type, a.terminal, a.created_at
		FROM attendance_records a
		WHERE %s
		ORDER BY a.dttm, a.id
	`, w)
	rows, err := q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance records: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (attendance.Record, error) {
		var (
			rec     attendance.Record
			recType string
		)
		err := row.Scan(&rec.ID, &rec.UserID, &rec.ShopID, &rec.EmployeeID, &rec.Dttm, &recType, &rec.Terminal, &rec.CreatedAt)
		rec.Type = attendance.RecordType(recType)
		return rec, err
	})
}
