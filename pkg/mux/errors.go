package mux

import "errors"

// Multiplexer errors.
var (
	// ErrNoChannel is returned by New when no channel is supplied.
	ErrNoChannel = errors.New("mux: no channel")

	// ErrMuxClosed is returned for operations on a closed multiplexer.
	ErrMuxClosed = errors.New("mux: session closed")

	// ErrStreamClosed is returned for operations on a closed stream. When
	// the session dies underneath a stream, the error wraps the cause.
	ErrStreamClosed = errors.New("mux: stream closed")

	// ErrServiceRejected is returned by Open when the peer answers the
	// OPEN with a rejection CLSE.
	ErrServiceRejected = errors.New("mux: service rejected by peer")

	// ErrProtocol is returned when the peer sends a message the
	// multiplexer cannot accept on an online session.
	ErrProtocol = errors.New("mux: protocol violation")
)
