package domain

import "errors"

// Sentinel errors shared across services and handlers. Callers classify with
// errors.Is and wrap with fmt.Errorf("%w: ...") to add context.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
