// Package services implements the write-path and consumer-side business logic
// of the consistency backbone. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// The taxonomy matters operationally: conflict errors are successful no-ops,
// validation errors are permanent and must never be retried as if transient,
// and everything else aborts the enclosing transaction and is surfaced.
package services

import "errors"

var (
	// ErrMalformedPayload is returned when an event payload fails schema
	// validation. The event is permanently skipped (and logged), because a
	// malformed event will not become valid on redelivery.
	ErrMalformedPayload = errors.New("malformed event payload")

	// ErrUnknownEventType is returned when a consumer receives an event type
	// it has no handler for.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrNoTenant is returned when a mutation request carries no tenant.
	ErrNoTenant = errors.New("tenant id is required")

	// ErrNoOperation is returned when a mutation request names no operation.
	ErrNoOperation = errors.New("operation name is required")

	// errAlreadyProcessed aborts a projector transaction whose gate insert
	// conflicted. It never escapes the service: Handle maps it to a nil
	// no-op so redelivery looks like success to the transport.
	errAlreadyProcessed = errors.New("event already processed")

	// errReplayConflict aborts a mutation transaction that lost the
	// idempotency-save race. The runner rolls back and re-fetches the
	// winner's snapshot instead of surfacing an error.
	errReplayConflict = errors.New("idempotency save conflict")
)
