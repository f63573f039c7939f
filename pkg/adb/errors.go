package adb

import "errors"

// Client errors.
var (
	// ErrNoSession is returned by NewClient when no session is supplied.
	ErrNoSession = errors.New("adb: no session")

	// ErrServiceFailed is returned when a device service answers with
	// something other than its documented success text.
	ErrServiceFailed = errors.New("adb: service failed")
)
