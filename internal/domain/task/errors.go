package task

import "errors"

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrNoHandler      = errors.New("no handler registered for task kind")
	ErrInvalidPayload = errors.New("invalid task payload")
)
