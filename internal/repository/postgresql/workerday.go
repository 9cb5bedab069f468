package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

const workerDayColumns = `
	wd.id, wd.employee_id, wd.employment_id, wd.shop_id, wd.dt, wd.type,
	wd.dttm_work_start, wd.dttm_work_end, wd.work_hours_seconds,
	wd.is_fact, wd.is_approved, wd.is_vacancy, wd.is_outsource, wd.is_blocked, wd.canceled,
	wd.outsources, wd.parent_worker_day_id, wd.closest_plan_approved_id,
	wd.source, wd.code, wd.comment, wd.created_by_id, wd.last_edited_by_id,
	wd.created_at, wd.updated_at`

type workerDayRepository struct {
	db *database.DB
}

func NewWorkerDayRepository(db *database.DB) workerday.Repository {
	return &workerDayRepository{db: db}
}

func (r *workerDayRepository) GetByID(ctx context.Context, id int64) (workerday.WorkerDay, error) {
	rows, err := r.list(ctx, workerday.NewQuery().ByIDs(id), false)
	if err != nil {
		return workerday.WorkerDay{}, err
	}
	if len(rows) == 0 {
		return workerday.WorkerDay{}, workerday.ErrWorkerDayNotFound
	}
	return rows[0], nil
}

func (r *workerDayRepository) List(ctx context.Context, q workerday.Query) ([]workerday.WorkerDay, error) {
	return r.list(ctx, q, false)
}

func (r *workerDayRepository) ListForUpdate(ctx context.Context, q workerday.Query) ([]workerday.WorkerDay, error) {
	return r.list(ctx, q, true)
}

func (r *workerDayRepository) list(ctx context.Context, q workerday.Query, forUpdate bool) ([]workerday.WorkerDay, error) {
	querier := GetQuerier(ctx, r.db)

	w := compileQuery(q)
	query := fmt.Sprintf(`
		SELECT %s
		FROM worker_days wd
		WHERE %s
		ORDER BY wd.employee_id NULLS LAST, wd.dt, wd.is_fact, wd.is_approved, wd.id
	`, workerDayColumns, w.String())
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := querier.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query worker days: %w", err)
	}
	defer rows.Close()

	var out []workerday.WorkerDay
	for rows.Next() {
		wd, err := scanWorkerDay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate worker days: %w", err)
	}

	if err := r.attachDetails(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func compileQuery(q workerday.Query) *where {
	w := &where{}
	if len(q.IDs) > 0 {
		w.add("wd.id = ANY(?)", q.IDs)
	}
	if len(q.EmployeeIDs) > 0 {
		w.add("wd.employee_id = ANY(?)", q.EmployeeIDs)
	}
	if len(q.ShopIDs) > 0 {
		w.add("wd.shop_id = ANY(?)", q.ShopIDs)
	}
	if len(q.WorkTypeIDs) > 0 {
		w.add("EXISTS (SELECT 1 FROM worker_day_details d WHERE d.worker_day_id = wd.id AND d.work_type_id = ANY(?))", q.WorkTypeIDs)
	}
	if len(q.ParentIDs) > 0 {
		w.add("wd.parent_worker_day_id = ANY(?)", q.ParentIDs)
	}
	if len(q.ClosestPlanIDs) > 0 {
		w.add("wd.closest_plan_approved_id = ANY(?)", q.ClosestPlanIDs)
	}
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		w.add("wd.type = ANY(?)", types)
	}
	if len(q.Dates) > 0 {
		w.add("wd.dt = ANY(?::date[])", q.Dates)
	}
	if q.DtFrom != nil {
		w.add("wd.dt >= ?", *q.DtFrom)
	}
	if q.DtTo != nil {
		w.add("wd.dt <= ?", *q.DtTo)
	}
	if q.IsFact != nil {
		w.add("wd.is_fact = ?", *q.IsFact)
	}
	if q.IsApproved != nil {
		w.add("wd.is_approved = ?", *q.IsApproved)
	}
	if q.IsVacancy != nil {
		w.add("wd.is_vacancy = ?", *q.IsVacancy)
	}
	if q.HasEmployee != nil {
		w.add(nullCheck("wd.employee_id", *q.HasEmployee))
	}
	if q.Manual != nil {
		w.add(nullCheck("wd.last_edited_by_id", *q.Manual))
	}
	if q.Canceled != nil {
		w.add("wd.canceled = ?", *q.Canceled)
	}
	return w
}

func nullCheck(column string, notNull bool) string {
	if notNull {
		return column + " IS NOT NULL"
	}
	return column + " IS NULL"
}

func scanWorkerDay(row pgx.Row) (workerday.WorkerDay, error) {
	var (
		wd          workerday.WorkerDay
		wdType      string
		source      string
		workSeconds int64
	)
	err := row.Scan(
		&wd.ID, &wd.EmployeeID, &wd.EmploymentID, &wd.ShopID, &wd.Dt, &wdType,
		&wd.DttmWorkStart, &wd.DttmWorkEnd, &workSeconds,
		&wd.IsFact, &wd.IsApproved, &wd.IsVacancy, &wd.IsOutsource, &wd.IsBlocked, &wd.Canceled,
		&wd.Outsources, &wd.ParentWorkerDayID, &wd.ClosestPlanApprovedID,
		&source, &wd.Code, &wd.Comment, &wd.CreatedByID, &wd.LastEditedByID,
		&wd.CreatedAt, &wd.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workerday.WorkerDay{}, workerday.ErrWorkerDayNotFound
		}
		return workerday.WorkerDay{}, fmt.Errorf("failed to scan worker day: %w", err)
	}
	wd.Type = workerday.Type(wdType)
	wd.Source = workerday.Source(source)
	wd.WorkHours = time.Duration(workSeconds) * time.Second
	if len(wd.Outsources) == 0 {
		wd.Outsources = nil
	}
	return wd, nil
}

func (r *workerDayRepository) attachDetails(ctx context.Context, rows []workerday.WorkerDay) error {
	if len(rows) == 0 {
		return nil
	}
	q := GetQuerier(ctx, r.db)

	ids := make([]int64, len(rows))
	index := make(map[int64]int, len(rows))
	for i, wd := range rows {
		ids[i] = wd.ID
		index[wd.ID] = i
	}

	detailRows, err := q.Query(ctx, `
		SELECT worker_day_id, work_type_id, work_part
		FROM worker_day_details
		WHERE worker_day_id = ANY($1)
		ORDER BY worker_day_id, work_type_id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query worker day details: %w", err)
	}
	defer detailRows.Close()

	for detailRows.Next() {
		var (
			wdID int64
			d    workerday.Detail
		)
		if err := detailRows.Scan(&wdID, &d.WorkTypeID, &d.WorkPart); err != nil {
			return fmt.Errorf("failed to scan worker day detail: %w", err)
		}
		i := index[wdID]
		rows[i].Details = append(rows[i].Details, d)
	}
	return detailRows.Err()
}

func (r *workerDayRepository) Create(ctx context.Context, wd *workerday.WorkerDay) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO worker_days (
			employee_id, employment_id, shop_id, dt, type,
			dttm_work_start, dttm_work_end, work_hours_seconds,
			is_fact, is_approved, is_vacancy, is_outsource, is_blocked, canceled,
			outsources, parent_worker_day_id, closest_plan_approved_id,
			source, code, comment, created_by_id, last_edited_by_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRow(ctx, query,
		wd.EmployeeID, wd.EmploymentID, wd.ShopID, wd.Dt, string(wd.Type),
		wd.DttmWorkStart, wd.DttmWorkEnd, int64(wd.WorkHours/time.Second),
		wd.IsFact, wd.IsApproved, wd.IsVacancy, wd.IsOutsource, wd.IsBlocked, wd.Canceled,
		outsources(wd.Outsources), wd.ParentWorkerDayID, wd.ClosestPlanApprovedID,
		string(wd.Source), wd.Code, wd.Comment, wd.CreatedByID, wd.LastEditedByID,
	).Scan(&wd.ID, &wd.CreatedAt, &wd.UpdatedAt)
	if err != nil {
		return mapError(fmt.Errorf("failed to create worker day: %w", err))
	}
	return r.replaceDetails(ctx, wd.ID, wd.Details)
}

func (r *workerDayRepository) Update(ctx context.Context, wd *workerday.WorkerDay) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE worker_days SET
			employee_id = $2, employment_id = $3, shop_id = $4, dt = $5, type = $6,
			dttm_work_start = $7, dttm_work_end = $8, work_hours_seconds = $9,
			is_fact = $10, is_approved = $11, is_vacancy = $12, is_outsource = $13, is_blocked = $14, canceled = $15,
			outsources = $16, parent_worker_day_id = $17, closest_plan_approved_id = $18,
			source = $19, code = $20, comment = $21, created_by_id = $22, last_edited_by_id = $23,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := q.QueryRow(ctx, query,
		wd.ID, wd.EmployeeID, wd.EmploymentID, wd.ShopID, wd.Dt, string(wd.Type),
		wd.DttmWorkStart, wd.DttmWorkEnd, int64(wd.WorkHours/time.Second),
		wd.IsFact, wd.IsApproved, wd.IsVacancy, wd.IsOutsource, wd.IsBlocked, wd.Canceled,
		outsources(wd.Outsources), wd.ParentWorkerDayID, wd.ClosestPlanApprovedID,
		string(wd.Source), wd.Code, wd.Comment, wd.CreatedByID, wd.LastEditedByID,
	).Scan(&wd.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workerday.ErrWorkerDayNotFound
		}
		return mapError(fmt.Errorf("failed to update worker day: %w", err))
	}
	return r.replaceDetails(ctx, wd.ID, wd.Details)
}

func (r *workerDayRepository) replaceDetails(ctx context.Context, id int64, details []workerday.Detail) error {
	q := GetQuerier(ctx, r.db)

	if _, err := q.Exec(ctx, "DELETE FROM worker_day_details WHERE worker_day_id = $1", id); err != nil {
		return fmt.Errorf("failed to clear worker day details: %w", err)
	}
	if len(details) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(details))
	valueArgs := make([]interface{}, 0, len(details)*3)
	for i, d := range details {
		base := i * 3
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		valueArgs = append(valueArgs, id, d.WorkTypeID, d.WorkPart)
	}
	query := fmt.Sprintf(`
		INSERT INTO worker_day_details (worker_day_id, work_type_id, work_part)
		VALUES %s
	`, strings.Join(valueStrings, ", "))
	if _, err := q.Exec(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("failed to insert worker day details: %w", err)
	}
	return nil
}

// Delete relies on the cascading details and the SET NULL links of the
// schema to drop dependants.
func (r *workerDayRepository) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q := GetQuerier(ctx, r.db)
	if _, err := q.Exec(ctx, "DELETE FROM worker_days WHERE id = ANY($1)", ids); err != nil {
		return fmt.Errorf("failed to delete worker days: %w", err)
	}
	return nil
}

func (r *workerDayRepository) SetClosestPlan(ctx context.Context, factID int64, planID *int64) error {
	q := GetQuerier(ctx, r.db)
	tag, err := q.Exec(ctx, "UPDATE worker_days SET closest_plan_approved_id = $2 WHERE id = $1", factID, planID)
	if err != nil {
		return fmt.Errorf("failed to set closest plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workerday.ErrWorkerDayNotFound
	}
	return nil
}

func (r *workerDayRepository) SetBlocked(ctx context.Context, ids []int64, blocked bool) error {
	if len(ids) == 0 {
		return nil
	}
	q := GetQuerier(ctx, r.db)
	_, err := q.Exec(ctx, "UPDATE worker_days SET is_blocked = $2, updated_at = NOW() WHERE id = ANY($1)", ids, blocked)
	if err != nil {
		return fmt.Errorf("failed to set blocked flag: %w", err)
	}
	return nil
}

func (r *workerDayRepository) SumPlanHours(ctx context.Context, employeeIDs []int64, from, to time.Time) (map[int64]time.Duration, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT employee_id, COALESCE(SUM(work_hours_seconds), 0)
		FROM worker_days
		WHERE employee_id = ANY($1)
		  AND dt BETWEEN $2 AND $3
		  AND NOT is_fact AND is_approved AND NOT canceled
		GROUP BY employee_id
	`, employeeIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to sum plan hours: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]time.Duration, len(employeeIDs))
	for rows.Next() {
		var (
			employeeID int64
			seconds    int64
		)
		if err := rows.Scan(&employeeID, &seconds); err != nil {
			return nil, fmt.Errorf("failed to scan plan hours: %w", err)
		}
		out[employeeID] = time.Duration(seconds) * time.Second
	}
	return out, rows.Err()
}

func outsources(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
