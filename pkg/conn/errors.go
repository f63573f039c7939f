package conn

import "errors"

// Connection errors.
var (
	// ErrConnectionFailed is returned when the handshake cannot complete.
	ErrConnectionFailed = errors.New("conn: connection failed")

	// ErrAuthFailed is returned when every key was rejected and the
	// operator did not approve the public key in time.
	ErrAuthFailed = errors.New("conn: authentication failed")

	// ErrVersionMismatch is returned when the peer's protocol version is
	// older than this client can speak.
	ErrVersionMismatch = errors.New("conn: protocol version mismatch")

	// ErrTLSRequired is returned when the peer demands a TLS upgrade,
	// which this client does not perform.
	ErrTLSRequired = errors.New("conn: peer requires TLS upgrade")

	// ErrInvalidResponse is returned for a message that the handshake
	// state machine cannot accept.
	ErrInvalidResponse = errors.New("conn: invalid response during handshake")

	// ErrBadBanner is returned for a CNXN banner that does not parse.
	ErrBadBanner = errors.New("conn: malformed banner")
)
