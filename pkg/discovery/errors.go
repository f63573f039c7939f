package discovery

import "errors"

// Discovery errors.
var (
	// ErrInvalidServiceType is returned for invalid or unknown service
	// types.
	ErrInvalidServiceType = errors.New("discovery: invalid service type")

	// ErrServiceNotFound is returned when a requested instance is not
	// found before the lookup deadline.
	ErrServiceNotFound = errors.New("discovery: service not found")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("discovery: operation timed out")
)
