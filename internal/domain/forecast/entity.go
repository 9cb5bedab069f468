package forecast

import (
	"context"
	"time"
)

type Kind string

const (
	LongForecast Kind = "LONG_FORECAST"
	Fact         Kind = "FACT"
)

// PeriodClients is one bucket of predicted or observed demand.
type PeriodClients struct {
	OperationTypeID int64
	DttmForecast    time.Time
	Value           float64
	Type            Kind
}

// Source yields demand ordered by DttmForecast for [from, to).
type Source interface {
	List(ctx context.Context, operationTypeIDs []int64, from, to time.Time, kind Kind) ([]PeriodClients, error)
}
