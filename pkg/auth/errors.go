package auth

import "errors"

// Auth errors.
var (
	ErrNoKey              = errors.New("auth: no private key")
	ErrBadToken           = errors.New("auth: bad token length")
	ErrUnsupportedKeySize = errors.New("auth: only 2048-bit RSA keys are accepted by devices")
	ErrNotPEM             = errors.New("auth: file is not PEM encoded")
	ErrNotRSA             = errors.New("auth: key is not RSA")
)
