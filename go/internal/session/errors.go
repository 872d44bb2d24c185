package session

import "errors"

var (
	// ErrSessionExpired is returned when the stored session was dropped
	// because its credential could not be kept valid.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoRefreshToken is returned when an expired credential has no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token")
)
