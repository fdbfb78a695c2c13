package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gigsafe/pkg/domain-errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code dErrors.Code
		want int
	}{
		{dErrors.CodeBadRequest, http.StatusBadRequest},
		{dErrors.CodeValidation, http.StatusBadRequest},
		{dErrors.CodeInvalidInput, http.StatusBadRequest},
		{dErrors.CodeUnauthorized, http.StatusUnauthorized},
		{dErrors.CodeForbidden, http.StatusForbidden},
		{dErrors.CodeNotFound, http.StatusNotFound},
		{dErrors.CodeConflict, http.StatusConflict},
		{dErrors.CodeInvalidState, http.StatusConflict},
		{dErrors.CodeTimeout, http.StatusGatewayTimeout},
		{dErrors.CodeUnavailable, http.StatusServiceUnavailable},
		{dErrors.CodeInvariantViolation, http.StatusInternalServerError},
		{dErrors.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.code))
		})
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WriteError(rr, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "failed to load worker"))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		body := decodeError(t, rr)
		assert.Equal(t, "internal_error", body["error"])
		assert.NotContains(t, body, "error_description")
	})

	t.Run("conflict carries its message", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WriteError(rr, dErrors.New(dErrors.CodeConflict, "activity already ingested"))

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		body := decodeError(t, rr)
		assert.Equal(t, "conflict", body["error"])
		assert.Equal(t, "activity already ingested", body["error_description"])
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WriteError(rr, errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "internal_error", decodeError(t, rr)["error"])
	})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (r *renameRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	decode := func(body string) (*renameRequest, bool, *httptest.ResponseRecorder) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/workers", strings.NewReader(body))
		got, ok := DecodeAndPrepare[renameRequest](rr, req, nil, context.Background(), "req-1")
		return got, ok, rr
	}

	t.Run("valid body is normalized", func(t *testing.T) {
		got, ok, _ := decode(`{"name":"  Swiggy "}`)
		require.True(t, ok)
		assert.Equal(t, "Swiggy", got.Name)
	})

	t.Run("malformed json", func(t *testing.T) {
		got, ok, rr := decode(`{"name":`)
		assert.False(t, ok)
		assert.Nil(t, got)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "bad_request", decodeError(t, rr)["error"])
	})

	t.Run("validation failure", func(t *testing.T) {
		_, ok, rr := decode(`{"name":"   "}`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := decodeError(t, rr)
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, "name is required", body["error_description"])
	})

	t.Run("oversized body", func(t *testing.T) {
		_, ok, rr := decode(`{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
