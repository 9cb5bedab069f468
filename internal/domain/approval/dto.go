package approval

import (
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

type Request struct {
	UserID               int64
	IsFact               bool
	DtFrom               time.Time
	DtTo                 time.Time
	ShopID               *int64
	EmployeeIDs          []int64
	WDTypes              []workerday.Type
	ApproveOpenVacancies bool
}

type Result struct {
	// Approved holds the ids of the drafts promoted to approved.
	Approved []int64
	// Deleted holds the ids of approved rows that were replaced or removed.
	Deleted []int64
}

func (r Result) Affected() int {
	return len(r.Approved) + len(r.Deleted)
}

type RequestApproveRequest struct {
	UserID int64
	ShopID int64
	DtFrom time.Time
	DtTo   time.Time
	IsFact bool
}
