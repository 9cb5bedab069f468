package notification

import "errors"

var (
	ErrUnknownNetwork = errors.New("event has no network")
	ErrEventNotFound  = errors.New("event not found")
)
