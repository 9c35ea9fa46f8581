// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	log "github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var seen string
	h := Middleware(log.NewTestLogger(log.InfoLevel))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	given := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, given)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, given, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.NotEqual(t, "not-a-uuid", seen)
}

func TestDecode(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	require.NoError(t, Decode(req, &v))
	require.Equal(t, 1, v.A)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.EqualError(t, Decode(req, &v), "request body is empty")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}{}`))
	require.Error(t, Decode(req, &v))
}

func TestErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorDetails(rec, http.StatusInternalServerError, "Encryption failed", "boom")
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, ErrorResponse{Error: "Encryption failed", Details: "boom"}, body)
}
