package core

import "errors"

var (
	ErrInvalidSpec     = errors.New("invalid visualization spec")
	ErrNotFound        = errors.New("visualization not found")
	ErrPortUnavailable = errors.New("viewer port unavailable")
	ErrLaunchFailed    = errors.New("browser launch failed")
)
