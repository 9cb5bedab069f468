package calendar

import (
	"context"
	"time"
)

type DayType string

const (
	Work    DayType = "WORK"
	Holiday DayType = "HOLIDAY"
	Short   DayType = "SHORT"
)

// NormHours is the working norm for a production day of this type.
func (t DayType) NormHours() float64 {
	switch t {
	case Work:
		return 8
	case Short:
		return 7
	default:
		return 0
	}
}

type ProductionDay struct {
	Dt     time.Time
	Region string
	Type   DayType
}

// DefaultDay is used for dates the calendar does not list: weekends rest.
func DefaultDay(dt time.Time) DayType {
	switch dt.Weekday() {
	case time.Saturday, time.Sunday:
		return Holiday
	default:
		return Work
	}
}

type Repository interface {
	ListProductionDays(ctx context.Context, region string, from, to time.Time) ([]ProductionDay, error)
}
