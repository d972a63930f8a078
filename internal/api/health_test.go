package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okCheck(context.Context) error   { return nil }
func downCheck(context.Context) error { return errors.New("connection refused") }

func TestReadiness(t *testing.T) {
	cases := []struct {
		name     string
		required map[string]Check
		optional map[string]Check
		status   int
		want     string
	}{
		{"all up", map[string]Check{"postgres": okCheck}, map[string]Check{"redis": okCheck}, http.StatusOK, "ok"},
		{"optional down", map[string]Check{"postgres": okCheck}, map[string]Check{"redis": downCheck}, http.StatusOK, "degraded"},
		{"required down", map[string]Check{"postgres": downCheck}, map[string]Check{"redis": okCheck}, http.StatusServiceUnavailable, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(tc.required, tc.optional, "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tc.status, rec.Code)
			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tc.want, resp.Status)
			assert.Len(t, resp.Dependencies, 2)
		})
	}
}

func TestLiveness(t *testing.T) {
	h := NewHealthHandler(map[string]Check{"postgres": downCheck}, nil, "prod", "1.2.0")
	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"1.2.0","env":"prod"}`, rec.Body.String())
}
