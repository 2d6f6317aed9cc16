package model

import "errors"

// Error taxonomy shared across the store components. Validation errors abort
// the single operation they belong to and never leave partial state behind.
var (
	ErrInvalidNamespace    = errors.New("unknown namespace")
	ErrInvalidDimension    = errors.New("embedding dimension mismatch")
	ErrUnauthorized        = errors.New("caller does not own target")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrConsentInsufficient = errors.New("consent level below namespace requirement")
	ErrQuotaExceeded       = errors.New("namespace vector quota exceeded")

	ErrVectorLengthMismatch = errors.New("vector length mismatch")
	ErrNoVectors            = errors.New("no vectors supplied")
)
