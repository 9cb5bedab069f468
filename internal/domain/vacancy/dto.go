package vacancy

import (
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

type CreateRequest struct {
	ShopID     int64
	WorkTypeID int64
	DtFrom     time.Time
	DtTo       time.Time
}

type CancelRequest struct {
	ShopID     int64
	WorkTypeID int64
	DtFrom     time.Time
	DtTo       time.Time
	// Approved limits the overflow computation to approved coverage.
	Approved bool
}

type ConfirmRequest struct {
	VacancyID  int64
	UserID     int64
	EmployeeID int64
	// Exchange lets the employee leave existing work on that date.
	Exchange  bool
	Reconfirm bool
	Source    workerday.Source
}

type RefuseRequest struct {
	VacancyID int64
	UserID    int64
}

// CreateResult lists the vacancies opened by one run.
type CreateResult struct {
	Created []int64
}

type CancelResult struct {
	Deleted  []int64
	Canceled []int64
}

// ExchangeResult counts the vacancies filled by a heuristic run.
type ExchangeResult struct {
	Filled []int64
}
