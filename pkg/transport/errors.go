package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed channel.
	ErrClosed = errors.New("transport: closed")

	// ErrNoConn is returned when no underlying connection is configured.
	ErrNoConn = errors.New("transport: no connection configured")

	// ErrTimeout names a transport timeout. Conn does not return it: an
	// expired read deadline surfaces as the net.Conn timeout error.
	ErrTimeout = errors.New("transport: timeout")

	// ErrUnsupported is returned for transports this build cannot provide.
	ErrUnsupported = errors.New("transport: unsupported on this platform")
)
