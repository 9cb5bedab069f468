package workerday

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies failures surfaced by the scheduling core.
type Kind string

const (
	KindPermissionDenied   Kind = "PermissionDenied"
	KindEmploymentInactive Kind = "EmploymentInactive"
	KindWorkTimeOverlap    Kind = "WorkTimeOverlap"
	KindInvariantViolation Kind = "InvariantViolation"
	KindNothingToApprove   Kind = "NothingToApprove"
	KindVacancyUnavailable Kind = "VacancyUnavailable"
	KindNoActivePlan       Kind = "NoActivePlan"
	KindExternalTransient  Kind = "ExternalTransient"
)

var (
	ErrPermissionDenied   = &Error{Kind: KindPermissionDenied}
	ErrEmploymentInactive = &Error{Kind: KindEmploymentInactive}
	ErrWorkTimeOverlap    = &Error{Kind: KindWorkTimeOverlap}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation}
	ErrNothingToApprove   = &Error{Kind: KindNothingToApprove}
	ErrVacancyUnavailable = &Error{Kind: KindVacancyUnavailable}
	ErrNoActivePlan       = &Error{Kind: KindNoActivePlan}
	ErrExternalTransient  = &Error{Kind: KindExternalTransient}

	ErrWorkerDayNotFound = errors.New("worker day not found")
	ErrUnknownType       = errors.New("unknown worker day type")
)

// Error is a classified failure. errors.Is matches on Kind, so callers test
// with errors.Is(err, workerday.ErrPermissionDenied).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func PermissionDenied(format string, args ...any) *Error {
	return newError(KindPermissionDenied, format, args...)
}

func EmploymentInactive(employeeID int64, dt time.Time) *Error {
	e := newError(KindEmploymentInactive, "employee %d has no active employment on %s", employeeID, dt.Format("2006-01-02"))
	e.Details = map[string]any{"employee_id": employeeID, "dt": dt.Format("2006-01-02")}
	return e
}

func InvariantViolation(format string, args ...any) *Error {
	return newError(KindInvariantViolation, format, args...)
}

func VacancyUnavailable(format string, args ...any) *Error {
	return newError(KindVacancyUnavailable, format, args...)
}

func NoActivePlan(shopID int64, month time.Time) *Error {
	e := newError(KindNoActivePlan, "shop %d has no approved plan for %s", shopID, month.Format("2006-01"))
	e.Details = map[string]any{"shop_id": shopID, "month": month.Format("2006-01")}
	return e
}

func ExternalTransient(err error) *Error {
	return &Error{Kind: KindExternalTransient, Message: err.Error()}
}

// WorkTimeOverlapError names the two rows whose time ranges intersect.
type WorkTimeOverlapError struct {
	EmployeeID int64
	Dt         time.Time
	FirstID    int64
	SecondID   int64
	From       time.Time
	To         time.Time
}

func (e *WorkTimeOverlapError) Error() string {
	return fmt.Sprintf("%s: employee %d on %s, worker days %d and %d overlap %s-%s",
		KindWorkTimeOverlap, e.EmployeeID, e.Dt.Format("2006-01-02"),
		e.FirstID, e.SecondID, e.From.Format("15:04"), e.To.Format("15:04"))
}

func (e *WorkTimeOverlapError) Is(target error) bool {
	var t *Error
	return errors.As(target, &t) && t.Kind == KindWorkTimeOverlap
}

// KindOf returns the classification of err, or "" when it is unclassified.
func KindOf(err error) Kind {
	var overlap *WorkTimeOverlapError
	if errors.As(err, &overlap) {
		return KindWorkTimeOverlap
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// DenyMessage formats the standard permission denial text.
func DenyMessage(wdType Type, action string, employeeID, shopID *int64, from, to *time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "no %s permission for %s", strings.ToLower(action), wdType)
	if employeeID != nil {
		fmt.Fprintf(&b, ", employee %d", *employeeID)
	}
	if shopID != nil {
		fmt.Fprintf(&b, ", shop %d", *shopID)
	}
	if from != nil || to != nil {
		b.WriteString(", allowed dates ")
		if from != nil {
			b.WriteString(from.Format("2006-01-02"))
		}
		b.WriteString("..")
		if to != nil {
			b.WriteString(to.Format("2006-01-02"))
		}
	}
	return b.String()
}
