package realtime

import "errors"

var (
	// ErrNotConnected is returned when a command is sent while no transport is open.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Connect when the manager is not idle.
	ErrAlreadyConnected = errors.New("connection already active")

	// ErrRateLimited is returned when the command sink drops a command burst.
	ErrRateLimited = errors.New("command rate limited")
)
