package attendance

import "errors"

var (
	ErrInvalidRecordType = errors.New("attendance record type must be COMING or LEAVING")
	ErrEmptyScope        = errors.New("reconcile scope is empty")
)
