package session

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrCapacityExceeded = errors.New("maximum number of sessions reached")
)
