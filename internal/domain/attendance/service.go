package attendance

import "context"

type Service interface {
	// Ingest stores a record and schedules reconciliation of its day.
	Ingest(ctx context.Context, rec Record) (Record, error)
	Reconcile(ctx context.Context, scope Scope) (Result, error)
}
