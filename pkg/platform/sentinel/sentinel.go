// Package sentinel holds the infrastructure facts stores report. Services
// translate them into domain errors; handlers never see them directly.
package sentinel

import "errors"

var (
	// ErrNotFound means the record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a unique key is taken or an expected state no longer holds.
	ErrConflict = errors.New("conflict")
)
