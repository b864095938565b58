// Package handlers defines HTTP-layer error codes used by the operational
// endpoints.
//
// These codes give ops tooling a stable, machine-readable taxonomy that
// supplements human-readable messages. Codes are lowercase snake_case and
// mirror common HTTP status semantics.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
)
