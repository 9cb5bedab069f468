package notification

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Save stores the event unless an event with the same ID exists and
	// reports whether it was inserted.
	Save(ctx context.Context, e Event) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (Event, error)
	ListRecent(ctx context.Context, networkID int64, limit int) ([]Event, error)
}
