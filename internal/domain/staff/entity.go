package staff

import (
	"slices"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
)

type User struct {
	ID        int64
	NetworkID int64
	Username  string
	// BlackListSymbol is matched against shop vacancy blacklists.
	BlackListSymbol *string
}

// Employee is a person at an organization; one user may own several.
type Employee struct {
	ID        int64
	UserID    int64
	TabelCode string
}

type EmploymentWorkType struct {
	WorkTypeID int64
	Priority   int
}

type Employment struct {
	ID              int64
	EmployeeID      int64
	ShopID          int64
	PositionID      *int64
	FunctionGroupID *int64
	DtHired         *time.Time
	DtFired         *time.Time
	// NormWorkHours is the percentage of the full-time norm, 100 by default.
	NormWorkHours float64
	WorkTypes     []EmploymentWorkType
}

// IsActive reports dt_hired <= dt <= dt_fired with open bounds.
func (e Employment) IsActive(dt time.Time) bool {
	if e.DtHired != nil && dt.Before(*e.DtHired) {
		return false
	}
	if e.DtFired != nil && dt.After(*e.DtFired) {
		return false
	}
	return true
}

func (e Employment) HasWorkType(workTypeID int64) bool {
	return slices.ContainsFunc(e.WorkTypes, func(w EmploymentWorkType) bool { return w.WorkTypeID == workTypeID })
}

// PriorityWorkType returns the work type with the highest priority.
func (e Employment) PriorityWorkType() (int64, bool) {
	if len(e.WorkTypes) == 0 {
		return 0, false
	}
	best := e.WorkTypes[0]
	for _, w := range e.WorkTypes[1:] {
		if w.Priority > best.Priority {
			best = w
		}
	}
	return best.WorkTypeID, true
}

type Position struct {
	ID        int64
	NetworkID int64
	Name      string
	GroupID   *int64
	// BreakPolicy overrides the shop policy when set.
	BreakPolicy org.BreakPolicy
	// HoursInDayoff is credited to paid dayoff types (vacation, trip, ...).
	HoursInDayoff time.Duration
	// MonthlyNormHours overrides the calendar norm when set.
	MonthlyNormHours *float64
}

type Group struct {
	ID                  int64
	NetworkID           int64
	Name                string
	CanChangeProtected  bool
	SubordinateGroupIDs []int64
}

// PickEmployment orders the employments active on dt by preferred shop,
// then preferred work type, then insertion order, and returns the first.
func PickEmployment(emps []Employment, dt time.Time, shopID *int64, workTypeID *int64) (Employment, bool) {
	active := ActiveOn(emps, dt)
	if len(active) == 0 {
		return Employment{}, false
	}
	score := func(e Employment) int {
		s := 0
		if shopID != nil && e.ShopID == *shopID {
			s += 2
		}
		if workTypeID != nil {
			if wt, ok := e.PriorityWorkType(); ok && wt == *workTypeID {
				s++
			}
		}
		return s
	}
	slices.SortStableFunc(active, func(a, b Employment) int { return score(b) - score(a) })
	return active[0], true
}

// ActiveOn filters employments active on dt, keeping order.
func ActiveOn(emps []Employment, dt time.Time) []Employment {
	var out []Employment
	for _, e := range emps {
		if e.IsActive(dt) {
			out = append(out, e)
		}
	}
	return out
}
