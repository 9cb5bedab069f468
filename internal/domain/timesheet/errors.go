package timesheet

import "errors"

var (
	ErrNoEmployment    = errors.New("employee has no employment in the month")
	ErrUnknownStrategy = errors.New("unknown timesheet strategy")
)
