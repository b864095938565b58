// Package repo implements the data persistence layer for the consistency
// backbone, backed by GORM. This file centralizes repository-level sentinel
// errors and cross-driver error classification helpers.
package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound indicates that no row matched the query.
var ErrNotFound = errors.New("not found")

// ErrDuplicate indicates a unique-constraint conflict: for the idempotency
// ledger it means a record already exists for the (tenant, request, operation)
// triple; for the processed-events gate it means this consumer already handled
// the event. Callers treat it as a successful no-op, not a failure.
var ErrDuplicate = errors.New("duplicate")

// IsUniqueViolation detects unique-constraint violations across drivers that
// may not map to gorm.ErrDuplicatedKey.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations;
	// Postgres says "duplicate key value violates unique constraint".
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
