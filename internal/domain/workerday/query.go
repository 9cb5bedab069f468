package workerday

import (
	"cmp"
	"slices"
	"time"
)

// Query is an explicit filter over worker days. Builder methods return a
// modified copy, so a base query can be shared.
type Query struct {
	IDs            []int64
	EmployeeIDs    []int64
	ShopIDs        []int64
	WorkTypeIDs    []int64
	ParentIDs      []int64
	ClosestPlanIDs []int64
	Types          []Type
	Dates          []time.Time
	DtFrom         *time.Time
	DtTo           *time.Time
	IsFact         *bool
	IsApproved     *bool
	IsVacancy      *bool
	HasEmployee    *bool
	Manual         *bool
	Canceled       *bool
}

func NewQuery() Query { return Query{} }

func (q Query) ByIDs(ids ...int64) Query {
	q.IDs = append(slices.Clone(q.IDs), ids...)
	return q
}

func (q Query) ForEmployees(ids ...int64) Query {
	q.EmployeeIDs = append(slices.Clone(q.EmployeeIDs), ids...)
	return q
}

func (q Query) ForShops(ids ...int64) Query {
	q.ShopIDs = append(slices.Clone(q.ShopIDs), ids...)
	return q
}

func (q Query) WithWorkTypes(ids ...int64) Query {
	q.WorkTypeIDs = append(slices.Clone(q.WorkTypeIDs), ids...)
	return q
}

func (q Query) WithParents(ids ...int64) Query {
	q.ParentIDs = append(slices.Clone(q.ParentIDs), ids...)
	return q
}

func (q Query) WithClosestPlan(ids ...int64) Query {
	q.ClosestPlanIDs = append(slices.Clone(q.ClosestPlanIDs), ids...)
	return q
}

func (q Query) OfTypes(types ...Type) Query {
	q.Types = append(slices.Clone(q.Types), types...)
	return q
}

// InRange limits dt to [from, to], both inclusive.
func (q Query) InRange(from, to time.Time) Query {
	q.DtFrom, q.DtTo = &from, &to
	return q
}

func (q Query) OnDates(dts ...time.Time) Query {
	q.Dates = append(slices.Clone(q.Dates), dts...)
	return q
}

func (q Query) Approved() Query { return q.approved(true) }
func (q Query) Draft() Query    { return q.approved(false) }
func (q Query) Plan() Query     { return q.fact(false) }
func (q Query) Fact() Query     { return q.fact(true) }

func (q Query) approved(v bool) Query {
	q.IsApproved = &v
	return q
}

func (q Query) fact(v bool) Query {
	q.IsFact = &v
	return q
}

func (q Query) Graph(g GraphType) Query { return q.fact(g.IsFact()) }

func (q Query) Vacancies() Query {
	v := true
	q.IsVacancy = &v
	return q
}

func (q Query) NotVacancies() Query {
	v := false
	q.IsVacancy = &v
	return q
}

// OpenVacancies selects unassigned, not cancelled vacancies.
func (q Query) OpenVacancies() Query {
	q = q.Vacancies().NotCanceled()
	v := false
	q.HasEmployee = &v
	return q
}

func (q Query) Assigned() Query {
	v := true
	q.HasEmployee = &v
	return q
}

func (q Query) NotCanceled() Query {
	v := false
	q.Canceled = &v
	return q
}

func (q Query) ManuallyEdited() Query {
	v := true
	q.Manual = &v
	return q
}

func (q Query) NotManuallyEdited() Query {
	v := false
	q.Manual = &v
	return q
}

// Match evaluates the query against a single row.
func (q Query) Match(wd WorkerDay) bool {
	if len(q.IDs) > 0 && !slices.Contains(q.IDs, wd.ID) {
		return false
	}
	if len(q.EmployeeIDs) > 0 && (wd.EmployeeID == nil || !slices.Contains(q.EmployeeIDs, *wd.EmployeeID)) {
		return false
	}
	if len(q.ShopIDs) > 0 && (wd.ShopID == nil || !slices.Contains(q.ShopIDs, *wd.ShopID)) {
		return false
	}
	if len(q.WorkTypeIDs) > 0 && !slices.ContainsFunc(wd.Details, func(d Detail) bool {
		return slices.Contains(q.WorkTypeIDs, d.WorkTypeID)
	}) {
		return false
	}
	if len(q.ParentIDs) > 0 && (wd.ParentWorkerDayID == nil || !slices.Contains(q.ParentIDs, *wd.ParentWorkerDayID)) {
		return false
	}
	if len(q.ClosestPlanIDs) > 0 && (wd.ClosestPlanApprovedID == nil || !slices.Contains(q.ClosestPlanIDs, *wd.ClosestPlanApprovedID)) {
		return false
	}
	if len(q.Types) > 0 && !slices.Contains(q.Types, wd.Type) {
		return false
	}
	if len(q.Dates) > 0 && !slices.ContainsFunc(q.Dates, wd.Dt.Equal) {
		return false
	}
	if q.DtFrom != nil && wd.Dt.Before(*q.DtFrom) {
		return false
	}
	if q.DtTo != nil && wd.Dt.After(*q.DtTo) {
		return false
	}
	if q.IsFact != nil && wd.IsFact != *q.IsFact {
		return false
	}
	if q.IsApproved != nil && wd.IsApproved != *q.IsApproved {
		return false
	}
	if q.IsVacancy != nil && wd.IsVacancy != *q.IsVacancy {
		return false
	}
	if q.HasEmployee != nil && (wd.EmployeeID != nil) != *q.HasEmployee {
		return false
	}
	if q.Manual != nil && wd.ManuallyEdited() != *q.Manual {
		return false
	}
	if q.Canceled != nil && wd.Canceled != *q.Canceled {
		return false
	}
	return true
}

// SortRows orders rows by (employee, dt, is_fact, is_approved, id); rows
// without an employee sort last.
func SortRows(rows []WorkerDay) {
	slices.SortStableFunc(rows, CompareRows)
}

func CompareRows(a, b WorkerDay) int {
	switch {
	case a.EmployeeID == nil && b.EmployeeID != nil:
		return 1
	case a.EmployeeID != nil && b.EmployeeID == nil:
		return -1
	case a.EmployeeID != nil && b.EmployeeID != nil:
		if c := cmp.Compare(*a.EmployeeID, *b.EmployeeID); c != 0 {
			return c
		}
	}
	if c := a.Dt.Compare(b.Dt); c != 0 {
		return c
	}
	if c := compareBool(a.IsFact, b.IsFact); c != 0 {
		return c
	}
	if c := compareBool(a.IsApproved, b.IsApproved); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
