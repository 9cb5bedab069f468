package database

import "context"

// Transactor runs fn inside one unit of work. The ctx handed to fn carries
// the transaction; repositories pick it up from there.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
