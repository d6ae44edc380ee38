package types

import "errors"

// Domain specific errors for authentication and authorization.
var (
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrForbidden       = errors.New("action forbidden")
	ErrBadRequest      = errors.New("bad request")
)

// Onboarding and billing errors.
var (
	ErrStepOutOfRange       = errors.New("onboarding step out of range")
	ErrBillingNotConfigured = errors.New("billing is not configured")
	ErrPackageNotFound      = errors.New("billing package not found")
)
