package workerday

import (
	"slices"
	"time"
)

// Detail assigns a share of the day to a shop work type.
type Detail struct {
	WorkTypeID int64
	WorkPart   float64
}

type WorkerDay struct {
	ID           int64
	EmployeeID   *int64
	EmploymentID *int64
	ShopID       *int64
	Dt           time.Time
	Type         Type

	DttmWorkStart *time.Time
	DttmWorkEnd   *time.Time
	WorkHours     time.Duration

	IsFact      bool
	IsApproved  bool
	IsVacancy   bool
	IsOutsource bool
	IsBlocked   bool
	Canceled    bool

	// Outsources lists the networks allowed to respond to an outsource vacancy.
	Outsources []int64
	Details    []Detail

	ParentWorkerDayID     *int64
	ClosestPlanApprovedID *int64

	Source         Source
	Code           string
	Comment        string
	CreatedByID    *int64
	LastEditedByID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key identifies the (employee, dt, is_fact, is_approved) slot a row occupies.
type Key struct {
	EmployeeID int64
	Dt         time.Time
	IsFact     bool
	IsApproved bool
}

// Slot is a Key without the approval flag, shared by a draft and its approved twin.
type Slot struct {
	EmployeeID int64
	Dt         time.Time
	IsFact     bool
}

func (wd WorkerDay) Key() (Key, bool) {
	if wd.EmployeeID == nil {
		return Key{}, false
	}
	return Key{EmployeeID: *wd.EmployeeID, Dt: wd.Dt, IsFact: wd.IsFact, IsApproved: wd.IsApproved}, true
}

func (wd WorkerDay) Slot() (Slot, bool) {
	if wd.EmployeeID == nil {
		return Slot{}, false
	}
	return Slot{EmployeeID: *wd.EmployeeID, Dt: wd.Dt, IsFact: wd.IsFact}, true
}

func (k Key) Slot() Slot {
	return Slot{EmployeeID: k.EmployeeID, Dt: k.Dt, IsFact: k.IsFact}
}

func (wd WorkerDay) IsOpenVacancy() bool {
	return wd.IsVacancy && wd.EmployeeID == nil && !wd.Canceled
}

func (wd WorkerDay) ManuallyEdited() bool {
	return wd.LastEditedByID != nil
}

// Interval returns the shift range for time-ranged rows.
func (wd WorkerDay) Interval() (start, end time.Time, ok bool) {
	if wd.DttmWorkStart == nil || wd.DttmWorkEnd == nil {
		return time.Time{}, time.Time{}, false
	}
	return *wd.DttmWorkStart, *wd.DttmWorkEnd, true
}

func (wd WorkerDay) Length() time.Duration {
	start, end, ok := wd.Interval()
	if !ok {
		return 0
	}
	return end.Sub(start)
}

// WorkTypeIDs returns the detail work types in ascending order.
func (wd WorkerDay) WorkTypeIDs() []int64 {
	ids := make([]int64, 0, len(wd.Details))
	for _, d := range wd.Details {
		ids = append(ids, d.WorkTypeID)
	}
	slices.Sort(ids)
	return ids
}

// WorkPart returns the share assigned to workTypeID, 0 when absent.
func (wd WorkerDay) WorkPart(workTypeID int64) float64 {
	var part float64
	for _, d := range wd.Details {
		if d.WorkTypeID == workTypeID {
			part += d.WorkPart
		}
	}
	return part
}

func (wd WorkerDay) TotalWorkPart() float64 {
	var total float64
	for _, d := range wd.Details {
		total += d.WorkPart
	}
	return total
}

// Clone returns a deep copy; the copy shares no pointers with wd.
func (wd WorkerDay) Clone() WorkerDay {
	c := wd
	c.EmployeeID = clonePtr(wd.EmployeeID)
	c.EmploymentID = clonePtr(wd.EmploymentID)
	c.ShopID = clonePtr(wd.ShopID)
	c.DttmWorkStart = clonePtr(wd.DttmWorkStart)
	c.DttmWorkEnd = clonePtr(wd.DttmWorkEnd)
	c.ParentWorkerDayID = clonePtr(wd.ParentWorkerDayID)
	c.ClosestPlanApprovedID = clonePtr(wd.ClosestPlanApprovedID)
	c.CreatedByID = clonePtr(wd.CreatedByID)
	c.LastEditedByID = clonePtr(wd.LastEditedByID)
	c.Outsources = slices.Clone(wd.Outsources)
	c.Details = slices.Clone(wd.Details)
	return c
}

// DraftOf builds an unsaved draft twin of an approved row.
func DraftOf(approved WorkerDay, source Source) WorkerDay {
	d := approved.Clone()
	d.ID = 0
	d.IsApproved = false
	d.Source = source
	d.ParentWorkerDayID = Ptr(approved.ID)
	d.ClosestPlanApprovedID = nil
	if approved.IsFact {
		d.ClosestPlanApprovedID = clonePtr(approved.ClosestPlanApprovedID)
	}
	d.CreatedAt, d.UpdatedAt = time.Time{}, time.Time{}
	return d
}

func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// EqualPtr compares two optional values.
func EqualPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// EqualTimePtr compares two optional instants with time.Time.Equal.
func EqualTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Input carries the writable fields of a create or update call.
type Input struct {
	ID           int64
	EmployeeID   *int64
	EmploymentID *int64
	ShopID       *int64
	Dt           time.Time
	Type         Type
	IsFact       bool
	IsVacancy    bool
	IsOutsource  bool
	Outsources   []int64

	DttmWorkStart *time.Time
	DttmWorkEnd   *time.Time
	Details       []Detail
	Code          string
	Comment       string
	Source        Source

	// SkipEmploymentCheck suppresses EmploymentInactive for integrations
	// that write days outside employment bounds.
	SkipEmploymentCheck bool
}

// Apply copies the input onto a draft row.
func (in Input) Apply(wd *WorkerDay) {
	wd.EmployeeID = clonePtr(in.EmployeeID)
	wd.EmploymentID = clonePtr(in.EmploymentID)
	wd.ShopID = clonePtr(in.ShopID)
	wd.Dt = in.Dt
	wd.Type = in.Type
	wd.IsFact = in.IsFact
	wd.IsVacancy = in.IsVacancy
	wd.IsOutsource = in.IsOutsource
	wd.Outsources = slices.Clone(in.Outsources)
	wd.DttmWorkStart = clonePtr(in.DttmWorkStart)
	wd.DttmWorkEnd = clonePtr(in.DttmWorkEnd)
	wd.Details = slices.Clone(in.Details)
	wd.Code = in.Code
	wd.Comment = in.Comment
	if in.Source != "" {
		wd.Source = in.Source
	}
}
