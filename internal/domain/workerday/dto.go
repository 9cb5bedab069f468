package workerday

import "time"

// BatchRequest replaces the rows inside DeleteScope with Rows. Rows with an
// ID update that row; the rest are inserted. A nil DeleteScope deletes nothing.
type BatchRequest struct {
	Rows        []Input
	DeleteScope *Query
}

type BatchResult struct {
	Created []WorkerDay
	Updated []WorkerDay
	Deleted []int64
}

type CopyApprovedRequest struct {
	DtFrom      time.Time
	DtTo        time.Time
	EmployeeIDs []int64
	ShopID      *int64
	IsFact      bool
}

type DuplicateRequest struct {
	WorkerDayIDs []int64
	ToEmployeeID *int64
	TargetDates  []time.Time
}
