package wire

import "errors"

// Wire layer errors.
var (
	// Header decoding errors
	ErrHeaderTooShort = errors.New("wire: data too short for header")
	ErrBadMagic       = errors.New("wire: header magic does not match command")
	ErrUnknownCommand = errors.New("wire: unknown command")

	// Payload errors
	ErrBadChecksum     = errors.New("wire: payload checksum mismatch")
	ErrPayloadTooLarge = errors.New("wire: payload exceeds negotiated maximum")
)
