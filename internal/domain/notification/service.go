package notification

import "context"

// Publisher puts an event on the bus. Publishing inside a transaction
// delivers only after that transaction commits.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
