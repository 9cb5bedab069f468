package staff

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrEmploymentNotFound = errors.New("employment not found")
	ErrPositionNotFound   = errors.New("position not found")
)
