package postgresql

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

const taskColumns = `id, kind, payload, run_at, attempts, max_attempts, status, last_error, created_at, updated_at`

type taskRepository struct {
	db *database.DB
}

func NewTaskRepository(db *database.DB) task.Repository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Enqueue(ctx context.Context, t task.Task) error {
	q := GetQuerier(ctx, r.db)

	if t.Status == "" {
		t.Status = task.StatusPending
	}
	_, err := q.Exec(ctx, `
		INSERT INTO tasks (id, kind, payload, run_at, attempts, max_attempts, status, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, string(t.Kind), []byte(t.Payload), t.RunAt, t.Attempts, t.MaxAttempts, string(t.Status), t.LastError)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// ClaimDue uses SKIP LOCKED so concurrent dispatchers never claim the same
// task twice.
func (r *taskRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]task.Task, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		UPDATE tasks SET status = 'running', attempts = attempts + 1, run_at = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status IN ('pending', 'running') AND run_at <= $1
			ORDER BY run_at, created_at
			LIMIT NULLIF($3, 0)
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	claimed, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (task.Task, error) {
		return scanTask(row)
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(claimed, func(a, b task.Task) int {
		if c := a.RunAt.Compare(b.RunAt); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return claimed, nil
}

func scanTask(row pgx.Row) (task.Task, error) {
	var (
		t            task.Task
		kind, status string
		payload      []byte
	)
	err := row.Scan(&t.ID, &kind, &payload, &t.RunAt, &t.Attempts, &t.MaxAttempts, &status, &t.LastError, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrTaskNotFound
		}
		return task.Task{}, fmt.Errorf("failed to scan task: %w", err)
	}
	t.Kind = task.Kind(kind)
	t.Status = task.Status(status)
	t.Payload = payload
	return t, nil
}

func (r *taskRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, "UPDATE tasks SET status = 'done', last_error = '', updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to mark task done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string, retryAt *time.Time) error {
	q := GetQuerier(ctx, r.db)

	query := "UPDATE tasks SET status = 'dead', last_error = $2, updated_at = NOW() WHERE id = $1"
	args := []interface{}{id, lastErr}
	if retryAt != nil {
		query = "UPDATE tasks SET status = 'pending', last_error = $2, run_at = $3, updated_at = NOW() WHERE id = $1"
		args = append(args, *retryAt)
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) Get(ctx context.Context, id uuid.UUID) (task.Task, error) {
	q := GetQuerier(ctx, r.db)
	return scanTask(q.QueryRow(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id))
}

func (r *taskRepository) ListByStatus(ctx context.Context, status task.Status, limit int) ([]task.Task, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + taskColumns + " FROM tasks WHERE status = $1 ORDER BY created_at"
	args := []interface{}{string(status)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (task.Task, error) {
		return scanTask(row)
	})
}
