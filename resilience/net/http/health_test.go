//go:build unit

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/lib-resilience/resilience/circuitbreaker"
	"github.com/LerianStudio/lib-resilience/resilience/log"
)

func newTestManager(t *testing.T) circuitbreaker.Manager {
	t.Helper()

	m, err := circuitbreaker.NewManager(log.NewNop(), circuitbreaker.WithDefaultConfig(circuitbreaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	}))
	require.NoError(t, err)

	return m
}

func tripBreaker(t *testing.T, m circuitbreaker.Manager, service string) {
	t.Helper()

	_, err := m.Execute(context.Background(), service,
		func(ctx context.Context) (any, error) {
			return nil, errors.New("downstream failure")
		})
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateOpen, m.GetState(service))
}

func TestPing(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Get("/ping", Ping)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)

	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthWithDependencies_NoDeps(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Get("/health", HealthWithDependencies())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, StatusAvailable, result["status"])
}

func TestHealthWithDependencies_AllHealthy(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.InitializeBreakers([]string{"postgres"}, nil))

	app := fiber.New()
	app.Get("/health", HealthWithDependencies(
		DependencyCheck{Name: "database", CircuitBreaker: m, ServiceName: "postgres"},
	))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Status       string                       `json:"status"`
		Dependencies map[string]*DependencyStatus `json:"dependencies"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, StatusAvailable, result.Status)
	require.Contains(t, result.Dependencies, "database")
	assert.True(t, result.Dependencies["database"].Healthy)
	assert.Equal(t, string(circuitbreaker.StateClosed), result.Dependencies["database"].CircuitBreakerState)
}

func TestHealthWithDependencies_OpenBreakerDegrades(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.InitializeBreakers([]string{"redis"}, nil))
	tripBreaker(t, m, "redis")

	app := fiber.New()
	app.Get("/health", HealthWithDependencies(
		DependencyCheck{Name: "cache", CircuitBreaker: m, ServiceName: "redis"},
	))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var result struct {
		Status       string                       `json:"status"`
		Dependencies map[string]*DependencyStatus `json:"dependencies"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, StatusDegraded, result.Status)
	assert.False(t, result.Dependencies["cache"].Healthy)
	assert.Equal(t, string(circuitbreaker.StateOpen), result.Dependencies["cache"].CircuitBreakerState)
	assert.Equal(t, int64(1), result.Dependencies["cache"].FailedRequests)
}

func TestHealthWithDependencies_CustomCheckOverrides(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.InitializeBreakers([]string{"postgres"}, nil))

	app := fiber.New()
	app.Get("/health", HealthWithDependencies(
		DependencyCheck{
			Name:           "database",
			CircuitBreaker: m,
			ServiceName:    "postgres",
			HealthCheck:    func() bool { return false },
		},
	))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	defer func() { require.NoError(t, resp.Body.Close()) }()

	// The breaker is closed, but the custom check wins.
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCircuitBreakerSummary(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.InitializeBreakers([]string{"a", "b"}, nil))
	tripBreaker(t, m, "b")

	app := fiber.New()
	app.Get("/circuit-breakers", CircuitBreakerSummary(m))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/circuit-breakers", nil))
	require.NoError(t, err)

	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summary circuitbreaker.HealthSummary

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, circuitbreaker.HealthDegraded, summary.OverallHealth)
	assert.Equal(t, 2, summary.TotalBreakers)
	assert.Equal(t, []string{"b"}, summary.OpenServices)
}

func TestCircuitBreakerStatus(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.InitializeBreakers([]string{"svc"}, nil))

	app := fiber.New()
	app.Get("/circuit-breakers/status", CircuitBreakerStatus(m))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/circuit-breakers/status", nil))
	require.NoError(t, err)

	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var statuses map[string]circuitbreaker.Status

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	require.Contains(t, statuses, "svc")
	assert.Equal(t, circuitbreaker.StateClosed, statuses["svc"].State)
}
