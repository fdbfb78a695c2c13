package models

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
)

const (
	// PayloadPrefix opens every credential payload.
	PayloadPrefix = "GIGSAFE"
	// PayloadDelimiter separates payload fields; no field may contain it.
	PayloadDelimiter = "|"
	payloadFields    = 4
	hashInputSep     = ":"
)

var (
	ErrMalformedPayload   = dErrors.New(dErrors.CodeBadRequest, "malformed credential payload")
	ErrUnknownWorker      = dErrors.New(dErrors.CodeNotFound, "unknown worker")
	ErrCredentialNotFound = dErrors.New(dErrors.CodeNotFound, "credential not found")
)

// ComputeHash returns hex(SHA256(workerID:nationalID:joinDate:secret)).
// It is a pure function of its inputs.
func ComputeHash(workerID, nationalID, joinDate, secret string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{workerID, nationalID, joinDate, secret}, hashInputSep)))
	return hex.EncodeToString(sum[:])
}

// HashWorker computes the credential hash for a worker record.
func HashWorker(w Worker, secret string) string {
	return ComputeHash(string(w.ID), string(w.NationalID), w.JoinDateString(), secret)
}

// HashesEqual compares two hashes in constant time.
func HashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Credential is the issued, shareable form of a worker identity.
type Credential struct {
	Prefix   string
	WorkerID id.WorkerID
	Hash     string
	IssuedAt time.Time
}

// CredentialFor returns the credential currently issued to w.
func CredentialFor(w Worker) Credential {
	return Credential{
		Prefix:   PayloadPrefix,
		WorkerID: w.ID,
		Hash:     w.CredentialHash,
		IssuedAt: w.IssuedAt,
	}
}

// Payload encodes the credential as PREFIX|WORKER_ID|HASH|ISO8601_TIMESTAMP.
func (c Credential) Payload() string {
	return strings.Join([]string{
		c.Prefix,
		string(c.WorkerID),
		c.Hash,
		c.IssuedAt.UTC().Format(time.RFC3339),
	}, PayloadDelimiter)
}

// ScannedPayload is a payload split into its fields, not yet checked against
// any stored record.
type ScannedPayload struct {
	Prefix    string
	WorkerID  id.WorkerID
	Hash      string
	Timestamp string
}

// ParsePayload splits a scanned payload. Anything other than exactly four
// non-empty fields with the GIGSAFE prefix is malformed.
func ParsePayload(raw string) (ScannedPayload, error) {
	fields := strings.Split(strings.TrimSpace(raw), PayloadDelimiter)
	if len(fields) != payloadFields {
		return ScannedPayload{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedPayload, payloadFields, len(fields))
	}
	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			return ScannedPayload{}, fmt.Errorf("%w: field %d is empty", ErrMalformedPayload, i+1)
		}
	}
	if fields[0] != PayloadPrefix {
		return ScannedPayload{}, fmt.Errorf("%w: unknown prefix %q", ErrMalformedPayload, fields[0])
	}
	workerID, err := id.ParseWorkerID(fields[1])
	if err != nil {
		return ScannedPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return ScannedPayload{
		Prefix:    fields[0],
		WorkerID:  workerID,
		Hash:      strings.ToLower(fields[2]),
		Timestamp: fields[3],
	}, nil
}

// VerificationStatus is the definite outcome of a credential check.
type VerificationStatus string

const (
	StatusAuthentic VerificationStatus = "AUTHENTIC"
	StatusTampered  VerificationStatus = "TAMPERED"
	StatusNotFound  VerificationStatus = "NOT_FOUND"
)

// Reasons attached to a Tampered outcome.
const (
	ReasonHashMismatch      = "hash_mismatch"
	ReasonRecordAltered     = "record_altered"
	ReasonCredentialRevoked = "credential_revoked"
)

// VerificationResult is the outcome of checking a presented credential.
type VerificationResult struct {
	Status     VerificationStatus
	Reason     string
	Worker     Worker
	Credential Credential
	VerifiedAt time.Time
}

// Authentic reports whether the credential checked out.
func (r VerificationResult) Authentic() bool {
	return r.Status == StatusAuthentic
}

// Check compares a presented hash against the stored worker. Authentic
// requires the hash recomputed from the stored fields, the stored credential
// hash and the presented hash to all agree.
func Check(w Worker, presentedHash, secret string) (VerificationStatus, string) {
	if !w.HasCredential() {
		return StatusTampered, ReasonCredentialRevoked
	}
	recomputed := HashWorker(w, secret)
	if !HashesEqual(recomputed, presentedHash) {
		return StatusTampered, ReasonHashMismatch
	}
	if !HashesEqual(w.CredentialHash, presentedHash) {
		return StatusTampered, ReasonRecordAltered
	}
	return StatusAuthentic, ""
}
