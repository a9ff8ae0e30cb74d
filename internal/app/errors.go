package app

import "errors"

// Sentinel errors for common application errors
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotConfigured   = errors.New("not configured")
)
