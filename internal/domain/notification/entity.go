package notification

import (
	"time"

	"github.com/google/uuid"
)

type Code string

const (
	CodeRequestApprove         Code = "request_approve"
	CodeApprove                Code = "approve"
	CodeVacancyCreated         Code = "vacancy_created"
	CodeVacancyDeleted         Code = "vacancy_deleted"
	CodeVacancyConfirmed       Code = "vacancy_confirmed"
	CodeVacancyReconfirmed     Code = "vacancy_reconfirmed"
	CodeVacancyRefused         Code = "vacancy_refused"
	CodeEmployeeVacancyDeleted Code = "employee_vacancy_deleted"
	CodeEmployeeNotCheckedIn   Code = "employee_not_checked_in"
	CodeEmployeeNotCheckedOut  Code = "employee_not_checked_out"
	CodeShiftElongation        Code = "shift_elongation"
	CodeHolidayExchange        Code = "holiday_exchange"
	CodeAutoVacancy            Code = "auto_vacancy"
	CodeApprovedNotFirst       Code = "approved_not_first"
)

// Event is one bus message. ID doubles as the idempotency key: delivering
// the same event twice stores and fans it out once.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	NetworkID int64          `json:"network_id"`
	Code      Code           `json:"code"`
	AuthorID  *int64         `json:"user_author_id,omitempty"`
	ShopID    *int64         `json:"shop_id,omitempty"`
	Context   map[string]any `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
}
