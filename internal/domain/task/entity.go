package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
)

type Kind string

const (
	KindReconcileFact     Kind = "reconcile_fact"
	KindVacancyScan       Kind = "vacancy_scan"
	KindRecalcTimesheet   Kind = "recalc_timesheet"
	KindRelinkClosestPlan Kind = "relink_closest_plan"
	KindPublishEvent      Kind = "publish_event"
	KindBlockDays         Kind = "block_days"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusDead    Status = "dead"
)

// Task is an outbox row. It is written in the same transaction as the
// change that caused it and executed after commit.
type Task struct {
	ID          uuid.UUID
	Kind        Kind
	Payload     json.RawMessage
	RunAt       time.Time
	Attempts    int
	MaxAttempts int
	Status      Status
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type EmployeeDate struct {
	EmployeeID int64     `json:"employee_id"`
	Dt         time.Time `json:"dt"`
}

type ReconcilePayload struct {
	EmployeeDates []EmployeeDate `json:"employee_dates,omitempty"`
	ShopIDs       []int64        `json:"shop_ids,omitempty"`
	DtFrom        *time.Time     `json:"dt_from,omitempty"`
	DtTo          *time.Time     `json:"dt_to,omitempty"`
}

type VacancyScanPayload struct {
	ShopID      int64     `json:"shop_id"`
	WorkTypeIDs []int64   `json:"work_type_ids,omitempty"`
	DtFrom      time.Time `json:"dt_from"`
	DtTo        time.Time `json:"dt_to"`
}

type TimesheetPayload struct {
	EmployeeID int64     `json:"employee_id"`
	Month      time.Time `json:"month"`
}

type RelinkPayload struct {
	EmployeeIDs []int64   `json:"employee_ids"`
	DtFrom      time.Time `json:"dt_from"`
	DtTo        time.Time `json:"dt_to"`
	// RecalcManual also refreshes work hours on manually edited facts.
	RecalcManual bool `json:"recalc_manual"`
}

type PublishEventPayload struct {
	Event notification.Event `json:"event"`
}

type BlockDaysPayload struct {
	WorkerDayIDs []int64 `json:"worker_day_ids"`
	Blocked      bool    `json:"blocked"`
	UserID       int64   `json:"user_id"`
}
