package models

import "errors"

// Domain errors shared by the store, the services and the HTTP layer.
// Callers wrap them with context and match with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyApplied = errors.New("suggestion already applied")
	ErrValidation     = errors.New("validation failed")
	ErrIntegration    = errors.New("remote platform integration failed")
	ErrBusy           = errors.New("operation already in progress")
)
