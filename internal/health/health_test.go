package health

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

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func ok(context.Context) error { return nil }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		primary    error
		search     error
		wantStatus Status
		wantCode   int
	}{
		{name: "all healthy", wantStatus: StatusHealthy, wantCode: http.StatusOK},
		{name: "search down", search: errors.New("mongo unreachable"), wantStatus: StatusDegraded, wantCode: http.StatusOK},
		{name: "primary down", primary: errors.New("postgres unreachable"), wantStatus: StatusUnhealthy, wantCode: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler("v1.0.0")
			handler.RegisterChecker("primary", NewPingChecker("primary", pingerFunc(func(context.Context) error { return tt.primary })))
			handler.RegisterChecker("search", NewOptionalPingChecker("search", pingerFunc(func(context.Context) error { return tt.search })))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, tt.wantCode, w.Code)

			var response Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantStatus, response.Status)
			assert.Equal(t, "v1.0.0", response.Version)
			assert.Len(t, response.Checks, 2)
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("primary", NewPingChecker("primary", pingerFunc(ok)))
	handler.RegisterChecker("breaker", NewFuncChecker("breaker", func(context.Context) (Status, string) {
		return StatusDegraded, "circuit open"
	}))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code, "degraded components keep the service ready")
	assert.Equal(t, "ready", w.Body.String())

	handler.RegisterChecker("primary", NewPingChecker("primary", pingerFunc(func(context.Context) error {
		return errors.New("down")
	})))
	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not ready", w.Body.String())
}

func TestPingChecker_UsesDeadline(t *testing.T) {
	var sawDeadline bool
	checker := NewPingChecker("primary", pingerFunc(func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	}))

	response := NewHandler("dev")
	response.RegisterChecker("primary", checker)
	result := response.Run(context.Background())

	assert.True(t, sawDeadline)
	assert.Equal(t, StatusHealthy, result.Checks["primary"].Status)
}

func TestFuncChecker_DefaultsToHealthy(t *testing.T) {
	check := NewFuncChecker("noop", func(context.Context) (Status, string) { return "", "" }).Check(context.Background())
	assert.Equal(t, StatusHealthy, check.Status)
	assert.Equal(t, "noop", check.Name)
}
