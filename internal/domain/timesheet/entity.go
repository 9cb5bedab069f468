package timesheet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

type Type string

const (
	TypeFact       Type = "FACT"
	TypeMain       Type = "MAIN"
	TypeAdditional Type = "ADDITIONAL"
)

// Item is one fiscal timesheet row.
type Item struct {
	ID             int64
	EmployeeID     int64
	Dt             time.Time
	TimesheetType  Type
	DayType        workerday.Type
	ShopID         *int64
	PositionID     *int64
	WorkTypeNameID *int64
	DttmWorkStart  *time.Time
	DttmWorkEnd    *time.Time
	DayHours       decimal.Decimal
	NightHours     decimal.Decimal
	Source         string
}

func (i Item) Total() decimal.Decimal {
	return i.DayHours.Add(i.NightHours)
}

// Clone returns a copy that shares no pointers with i.
func (i Item) Clone() Item {
	c := i
	c.ShopID = clone(i.ShopID)
	c.PositionID = clone(i.PositionID)
	c.WorkTypeNameID = clone(i.WorkTypeNameID)
	c.DttmWorkStart = clone(i.DttmWorkStart)
	c.DttmWorkEnd = clone(i.DttmWorkEnd)
	return c
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Result holds the three buffers of one employee month.
type Result struct {
	EmployeeID int64
	Month      time.Time
	Norm       decimal.Decimal
	Fact       []Item
	Main       []Item
	Additional []Item
}

func Sum(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, i := range items {
		total = total.Add(i.Total())
	}
	return total
}
