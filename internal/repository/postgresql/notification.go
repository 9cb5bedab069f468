package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

type notificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new event store
func NewNotificationRepository(db *database.DB) notification.Repository {
	return &notificationRepository{db: db}
}

// Save inserts the event; a repeated ID is ignored
func (r *notificationRepository) Save(ctx context.Context, e notification.Event) (bool, error) {
	q := GetQuerier(ctx, r.db)

	contextJSON, err := json.Marshal(e.Context)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event context: %w", err)
	}

	query := `
		INSERT INTO events (id, network_id, code, author_id, shop_id, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		ON CONFLICT (id) DO NOTHING
	`
	var createdAt interface{}
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt
	}
	tag, err := q.Exec(ctx, query,
		e.ID,
		e.NetworkID,
		string(e.Code),
		e.AuthorID,
		e.ShopID,
		contextJSON,
		createdAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const eventColumns = `id, network_id, code, author_id, shop_id, context, created_at`

func scanEvent(row pgx.Row) (notification.Event, error) {
	var (
		e           notification.Event
		code        string
		contextJSON []byte
	)
	err := row.Scan(&e.ID, &e.NetworkID, &code, &e.AuthorID, &e.ShopID, &contextJSON, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notification.Event{}, notification.ErrEventNotFound
		}
		return notification.Event{}, fmt.Errorf("failed to scan event: %w", err)
	}
	e.Code = notification.Code(code)
	if contextJSON != nil {
		if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
			return notification.Event{}, fmt.Errorf("failed to unmarshal event context: %w", err)
		}
	}
	return e, nil
}

// Get retrieves an event by ID
func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (notification.Event, error) {
	q := GetQuerier(ctx, r.db)
	return scanEvent(q.QueryRow(ctx, "SELECT "+eventColumns+" FROM events WHERE id = $1", id))
}

// ListRecent returns the newest events of a network first
func (r *notificationRepository) ListRecent(ctx context.Context, networkID int64, limit int) ([]notification.Event, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE network_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)
	`, networkID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (notification.Event, error) {
		return scanEvent(row)
	})
}
