package permission

import (
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionApprove Action = "APPROVE"
)

// EmployeeType selects which employees a permission row covers.
type EmployeeType string

const (
	EmployeeSubordinate      EmployeeType = "SUBORDINATE_EMPLOYEE"
	EmployeeMyShopsAny       EmployeeType = "MY_SHOPS_ANY_EMPLOYEE"
	EmployeeMyNetwork        EmployeeType = "MY_NETWORK_EMPLOYEE"
	EmployeeOutsourceNetwork EmployeeType = "OUTSOURCE_NETWORK_EMPLOYEE"
)

// ShopType selects which shops a permission row covers.
type ShopType string

const (
	ShopMyShops          ShopType = "MY_SHOPS"
	ShopMyNetwork        ShopType = "MY_NETWORK_SHOPS"
	ShopOutsourceNetwork ShopType = "OUTSOURCE_NETWORK_SHOPS"
	ShopClientNetwork    ShopType = "CLIENT_NETWORK_SHOPS"
)

type GroupWorkerDayPermission struct {
	ID                int64
	GroupID           int64
	Action            Action
	GraphType         workerday.GraphType
	WDType            workerday.Type
	LimitDaysInPast   *int
	LimitDaysInFuture *int
	EmployeeType      EmployeeType
	ShopType          ShopType
	AllowApproveFirst bool
}

// Window returns the allowed [from, to] dates relative to today; nil bounds are open.
func (p GroupWorkerDayPermission) Window(today time.Time) (from, to *time.Time) {
	if p.LimitDaysInPast != nil {
		f := today.AddDate(0, 0, -*p.LimitDaysInPast)
		from = &f
	}
	if p.LimitDaysInFuture != nil {
		t := today.AddDate(0, 0, *p.LimitDaysInFuture)
		to = &t
	}
	return from, to
}

func (p GroupWorkerDayPermission) FitsDate(dt, today time.Time) bool {
	from, to := p.Window(today)
	if from != nil && dt.Before(*from) {
		return false
	}
	if to != nil && dt.After(*to) {
		return false
	}
	return true
}

// Request is one permission question.
type Request struct {
	Action     Action
	GraphType  workerday.GraphType
	WDType     workerday.Type
	Dt         time.Time
	EmployeeID *int64
	ShopID     *int64
	IsVacancy  bool
	// SkipEmploymentCheck suppresses EmploymentInactive.
	SkipEmploymentCheck bool
}

// RequestFor builds the request for acting on wd.
func RequestFor(action Action, wd workerday.WorkerDay) Request {
	return Request{
		Action:     action,
		GraphType:  workerday.GraphOf(wd.IsFact),
		WDType:     wd.Type,
		Dt:         wd.Dt,
		EmployeeID: wd.EmployeeID,
		ShopID:     wd.ShopID,
		IsVacancy:  wd.IsVacancy,
	}
}
