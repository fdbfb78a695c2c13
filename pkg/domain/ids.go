// Package domain holds the identifier primitives shared across GigSafe modules.
// Each identifier is parsed once at a trust boundary and carried as a distinct
// type afterwards.
package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "gigsafe/pkg/domain-errors"
)

const (
	maxWorkerIDLength   = 32
	maxActivityIDLength = 64
	nationalIDLength    = 12
)

// WorkerID identifies a gig worker, e.g. "DRV00009" or "BC000123".
type WorkerID string

// ParseWorkerID accepts upper-case letters followed by digits. The pipe
// character is excluded so the id can travel inside a credential payload.
func ParseWorkerID(s string) (WorkerID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "worker id is required")
	}
	if len(s) > maxWorkerIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "worker id is too long")
	}
	seenDigit := false
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			if seenDigit {
				return "", dErrors.New(dErrors.CodeInvalidInput, "worker id must be letters followed by digits")
			}
		case r >= '0' && r <= '9':
			if i == 0 {
				return "", dErrors.New(dErrors.CodeInvalidInput, "worker id must start with a letter")
			}
			seenDigit = true
		default:
			return "", dErrors.New(dErrors.CodeInvalidInput, "worker id contains invalid characters")
		}
	}
	if !seenDigit {
		return "", dErrors.New(dErrors.CodeInvalidInput, "worker id must end with digits")
	}
	return WorkerID(s), nil
}

func (id WorkerID) String() string { return string(id) }

// NationalID is a 12-digit national identity number.
type NationalID string

func ParseNationalID(s string) (NationalID, error) {
	s = strings.TrimSpace(s)
	if len(s) != nationalIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "national id must be 12 digits")
	}
	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return "", dErrors.New(dErrors.CodeInvalidInput, "national id must be 12 digits")
		}
	}
	return NationalID(s), nil
}

func (n NationalID) String() string { return string(n) }

// Masked returns the id with all but the last four digits hidden.
func (n NationalID) Masked() string {
	s := string(n)
	if len(s) <= 4 {
		return s
	}
	return strings.Repeat("X", len(s)-4) + s[len(s)-4:]
}

// ActivityID identifies one ingested activity (trip or agent visit).
type ActivityID string

func ParseActivityID(s string) (ActivityID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "activity id is required")
	}
	if len(s) > maxActivityIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "activity id is too long")
	}
	return ActivityID(s), nil
}

// NewActivityID returns a random activity id for sources that do not supply one.
func NewActivityID() ActivityID {
	return ActivityID(uuid.NewString())
}

func (id ActivityID) String() string { return string(id) }

// AlertID identifies a recorded alert.
type AlertID uuid.UUID

func NewAlertID() AlertID { return AlertID(uuid.New()) }

func ParseAlertID(s string) (AlertID, error) {
	if s == "" {
		return AlertID{}, dErrors.New(dErrors.CodeInvalidInput, "alert id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return AlertID{}, dErrors.New(dErrors.CodeInvalidInput, "alert id must be a uuid")
	}
	if u == uuid.Nil {
		return AlertID{}, dErrors.New(dErrors.CodeInvalidInput, "alert id must not be nil")
	}
	return AlertID(u), nil
}

func (id AlertID) String() string { return uuid.UUID(id).String() }

func (id AlertID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Region names a state or union territory as used by the accident statistics feed.
type Region string

// NormalizeRegion trims and lower-cases a region name for lookups.
func NormalizeRegion(s string) Region {
	return Region(strings.ToLower(strings.Join(strings.Fields(s), " ")))
}
