package handlers

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

func TestHealthHandler_AllHealthy(t *testing.T) {
	m := NewHealthManager("1.2.3")
	m.RegisterChecker("redis", CheckFunc(func(ctx context.Context) error { return nil }))
	m.RegisterChecker("postgres", CheckFunc(func(ctx context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	m.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "healthy", resp.Checks["redis"])
	assert.Equal(t, "healthy", resp.Checks["postgres"])
}

func TestHealthHandler_OneUnhealthy(t *testing.T) {
	m := NewHealthManager("dev")
	m.RegisterChecker("redis", CheckFunc(func(ctx context.Context) error { return nil }))
	m.RegisterChecker("postgres", CheckFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	m.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "healthy", resp.Checks["redis"])
	assert.Contains(t, resp.Checks["postgres"], "connection refused")
}

func TestHealthHandler_NoCheckers(t *testing.T) {
	m := NewHealthManager("dev")

	rec := httptest.NewRecorder()
	m.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
