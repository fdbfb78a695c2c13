package handler

import (
	"time"

	"gigsafe/internal/credential/models"
)

// CredentialResponse is returned by issuance endpoints.
type CredentialResponse struct {
	Prefix   string    `json:"prefix"`
	WorkerID string    `json:"worker_id"`
	Hash     string    `json:"hash"`
	IssuedAt time.Time `json:"issued_at"`
	Payload  string    `json:"payload"`
}

func FromCredential(c models.Credential) *CredentialResponse {
	return &CredentialResponse{
		Prefix:   c.Prefix,
		WorkerID: string(c.WorkerID),
		Hash:     c.Hash,
		IssuedAt: c.IssuedAt,
		Payload:  c.Payload(),
	}
}

// WorkerResponse never exposes the full national id.
type WorkerResponse struct {
	WorkerID            string     `json:"worker_id"`
	NationalID          string     `json:"national_id"`
	JoinDate            string     `json:"join_date"`
	Type                string     `json:"type"`
	Affiliation         string     `json:"affiliation"`
	AuthorizationExpiry *time.Time `json:"authorization_expiry,omitempty"`
	AePSEnabled         *bool      `json:"aeps_enabled,omitempty"`
	HasCredential       bool       `json:"has_credential"`
	IssuedAt            *time.Time `json:"issued_at,omitempty"`
	RegisteredAt        time.Time  `json:"registered_at"`
}

func FromWorker(w models.Worker) *WorkerResponse {
	resp := &WorkerResponse{
		WorkerID:      string(w.ID),
		NationalID:    w.NationalID.Masked(),
		JoinDate:      w.JoinDateString(),
		Type:          string(w.Type),
		Affiliation:   w.Affiliation,
		HasCredential: w.HasCredential(),
		RegisteredAt:  w.RegisteredAt,
	}
	if w.IsBankingAgent() {
		expiry := w.AuthorizationExpiry
		aeps := w.AePSEnabled
		resp.AuthorizationExpiry = &expiry
		resp.AePSEnabled = &aeps
	}
	if w.HasCredential() {
		issued := w.IssuedAt
		resp.IssuedAt = &issued
	}
	return resp
}
