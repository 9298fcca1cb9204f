package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Registries and infrastructure layers
// return these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about records, not validation failures:
// - ErrNotFound: entity does not exist in the registry
// - ErrAlreadyUsed: an add collided with an existing identifier
// - ErrConflict: a conditional write lost against a concurrent writer
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, illegal transitions), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
