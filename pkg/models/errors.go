package models

import "errors"

// Domain error taxonomy. Validation and state errors are rejected
// synchronously and never retried; graph errors are rejected at publish time
// or surfaced as execution-fatal if discovered at runtime.
var (
	// ErrValidation indicates a malformed graph or missing required config.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState indicates an operation illegal for the current status.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrJourneyArchived indicates an operation on an archived journey.
	ErrJourneyArchived = errors.New("journey is archived")

	// ErrGraphCycle indicates a directed cycle in the journey graph.
	ErrGraphCycle = errors.New("journey graph contains a cycle")

	// ErrGraphIntegrity indicates a structural defect found while routing,
	// e.g. a non-branching step with zero or multiple unlabeled edges.
	ErrGraphIntegrity = errors.New("journey graph integrity violation")
)
