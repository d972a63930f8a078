package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-availability/internal/api"
	"github.com/hackgods/clinic-availability/internal/config"
)

func pingOK(context.Context) error   { return nil }
func pingDown(context.Context) error { return errors.New("dial tcp: connection refused") }

func TestReadinessChecksPlacement(t *testing.T) {
	required, optional := readinessChecks(config.LockBackendRedis, pingOK, pingOK)
	assert.Contains(t, required, "postgres")
	assert.Contains(t, required, "redis")
	assert.Empty(t, optional)

	required, optional = readinessChecks(config.LockBackendLocal, pingOK, pingOK)
	assert.Contains(t, required, "postgres")
	assert.NotContains(t, required, "redis")
	assert.Contains(t, optional, "redis")

	required, optional = readinessChecks(config.LockBackendLocal, pingOK, nil)
	assert.Len(t, required, 1)
	assert.Empty(t, optional)
}

func TestRedisOutageWithRedisLocksIsNotReady(t *testing.T) {
	cases := []struct {
		backend string
		status  int
		want    string
	}{
		{config.LockBackendRedis, http.StatusServiceUnavailable, "error"},
		{config.LockBackendLocal, http.StatusOK, "degraded"},
	}
	for _, tc := range cases {
		t.Run(tc.backend, func(t *testing.T) {
			required, optional := readinessChecks(tc.backend, pingOK, pingDown)
			h := api.NewHealthHandler(required, optional, "test", "v1")

			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tc.status, rec.Code)
			var resp api.ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tc.want, resp.Status)
			assert.Equal(t, "down", resp.Dependencies["redis"])
		})
	}
}
