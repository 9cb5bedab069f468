package timesheet

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
)

// Buffers are the three working sets of one employee month.
type Buffers struct {
	Fact       *Buffer
	Main       *Buffer
	Additional *Buffer
}

func NewBuffers() Buffers {
	return Buffers{Fact: NewBuffer(), Main: NewBuffer(), Additional: NewBuffer()}
}

// Strategy fills Main and Additional from Fact. Strategies never touch
// Fact and never change the month total.
type Strategy func(b Buffers, norm decimal.Decimal)

const DefaultStrategy = "base"

var strategies = map[string]Strategy{
	"base":                 overNorm(FieldNight, FieldDay),
	"norm_then_additional": overNorm(FieldDay, FieldNight),
	"all_main":             copyFact,
}

// StrategyByName looks up a registered strategy.
func StrategyByName(name string) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", timesheet.ErrUnknownStrategy, name)
	}
	return s, nil
}

func copyFact(b Buffers, _ decimal.Decimal) {
	for _, item := range b.Fact.Items() {
		b.Main.Add(item.Dt, item, false)
	}
}

// overNorm copies fact into main and moves the hours above norm into
// additional, taking the fields in order. Dayoffs count toward the norm
// but stay in main.
func overNorm(order ...Field) Strategy {
	return func(b Buffers, norm decimal.Decimal) {
		copyFact(b, norm)
		over := b.Main.Total().Sub(norm)
		for _, field := range order {
			if !over.IsPositive() {
				return
			}
			for _, item := range b.Main.SubtractHours(over, field, movable, nil) {
				b.Additional.Add(item.Dt, item, true)
				over = over.Sub(item.Total())
			}
		}
	}
}

func movable(item timesheet.Item) bool {
	return !isDayoff(item)
}
