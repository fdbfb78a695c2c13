package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"gigsafe/pkg/requestcontext"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (s stubValidator) ValidateToken(string) (*Claims, error) { return s.claims, s.err }

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		header     string
		validator  stubValidator
		wantStatus int
		wantSub    string
	}{
		{"missing header", "", stubValidator{}, http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized, ""},
		{"invalid token", "Bearer abc", stubValidator{err: errors.New("expired")}, http.StatusUnauthorized, ""},
		{"valid token", "Bearer abc", stubValidator{claims: &Claims{Subject: "ops-officer-7"}}, http.StatusOK, "ops-officer-7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sub string
			h := RequireAuth(tt.validator, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sub = requestcontext.Requester(r.Context())
			}))
			r := httptest.NewRequest(http.MethodPost, "/workers/DRV00009/credential", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantSub, sub)
		})
	}
}
