package attendance

import "time"

type RecordType string

const (
	Coming  RecordType = "COMING"
	Leaving RecordType = "LEAVING"
)

// Record is one raw scan. Terminal records arrive without an employee; the
// reconciler resolves it from the user's employments.
type Record struct {
	ID         int64
	UserID     int64
	ShopID     int64
	EmployeeID *int64
	Dttm       time.Time
	Type       RecordType
	Terminal   bool
	CreatedAt  time.Time
}

// Scope selects what a reconcile run rebuilds: either a date range over a
// set of shops, or explicit employee dates.
type Scope struct {
	DtFrom        *time.Time
	DtTo          *time.Time
	ShopIDs       []int64
	EmployeeDates []EmployeeDate
}

type EmployeeDate struct {
	EmployeeID int64
	Dt         time.Time
}

type Result struct {
	Created int
	Updated int
	Deleted int
}
