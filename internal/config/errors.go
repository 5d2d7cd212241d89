package config

import (
	"errors"
	"strings"
)

// Store sentinels. Callers match them with errors.Is; the driver error is
// kept in the chain where there is one.
var (
	// ErrNotFound means no key, user, or movie matched the lookup, or an
	// update/delete touched zero rows.
	ErrNotFound = errors.New("record not found")

	// ErrConflict means an insert hit a unique constraint, e.g. a second
	// account with the same email.
	ErrConflict = errors.New("record already exists")
)

// isUniqueViolation recognizes duplicate-key failures from the sqlite,
// postgres, and mysql drivers by message, since each driver has its own
// error type.
func isUniqueViolation(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry")
}
