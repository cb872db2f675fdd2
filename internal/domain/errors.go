package domain

import "errors"

// Error taxonomy shared by both store backends and the services.
// Callers discriminate with errors.Is; storage internals never leak raw.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrBackendUnavailable  = errors.New("backend unavailable")
)
