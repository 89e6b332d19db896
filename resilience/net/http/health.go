package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/lib-resilience/resilience/circuitbreaker"
)

// Health status values reported by the health endpoints.
const (
	StatusAvailable = "available"
	StatusDegraded  = "degraded"
)

// Ping returns HTTP Status 200 with response "pong".
func Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// DependencyCheck represents a health check configuration for a single dependency.
//
// At minimum, provide a Name. For circuit breaker integration, provide both
// CircuitBreaker and ServiceName. For custom health logic, provide HealthCheck.
type DependencyCheck struct {
	// Name is the identifier for this dependency in the health response
	Name string

	// CircuitBreaker is the circuit breaker manager (optional)
	// When provided with ServiceName, health endpoint will report circuit breaker state
	CircuitBreaker circuitbreaker.Manager

	// ServiceName is the name used to register this dependency with the circuit breaker
	// Required if CircuitBreaker is provided
	ServiceName string

	// HealthCheck is a custom health check function (optional)
	// When provided it overrides the circuit breaker health status.
	// Return true for healthy, false for unhealthy
	HealthCheck func() bool
}

// DependencyStatus is the per-dependency section of the health response.
type DependencyStatus struct {
	// CircuitBreakerState indicates the current circuit breaker state
	// (closed, open, half-open). Only populated when a circuit breaker is
	// configured for this dependency.
	CircuitBreakerState string `json:"circuit_breaker_state,omitempty"`

	// Healthy indicates whether the dependency is currently healthy
	Healthy bool `json:"healthy"`

	// TotalRequests is the total number of requests observed by the breaker
	TotalRequests int64 `json:"total_requests,omitempty"`

	// SuccessfulRequests is the cumulative count of successful requests
	SuccessfulRequests int64 `json:"successful_requests,omitempty"`

	// FailedRequests is the cumulative count of failed requests
	FailedRequests int64 `json:"failed_requests,omitempty"`

	// FailureRate is FailedRequests over TotalRequests
	FailureRate float64 `json:"failure_rate,omitempty"`
}

// HealthWithDependencies creates a Fiber handler that reports health status
// based on circuit breaker states and custom health checks.
//
// Returns HTTP 200 (status: "available") when all dependencies are healthy,
// or HTTP 503 (status: "degraded") when any dependency fails.
//
// Example:
//
//	f.Get("/health", libHttp.HealthWithDependencies(
//	    libHttp.DependencyCheck{
//	        Name:           "database",
//	        CircuitBreaker: cbManager,
//	        ServiceName:    "postgres",
//	        HealthCheck:    func() bool { return db.Ping() == nil },
//	    },
//	    libHttp.DependencyCheck{
//	        Name:           "cache",
//	        CircuitBreaker: cbManager,
//	        ServiceName:    "redis",
//	    },
//	))
func HealthWithDependencies(dependencies ...DependencyCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		overallStatus := StatusAvailable
		httpStatus := fiber.StatusOK

		depStatuses := make(map[string]*DependencyStatus)

		for _, dep := range dependencies {
			status := &DependencyStatus{
				Healthy: true, // Default to healthy unless proven otherwise
			}

			if dep.CircuitBreaker != nil && dep.ServiceName != "" {
				cbState := dep.CircuitBreaker.GetState(dep.ServiceName)
				status.CircuitBreakerState = string(cbState)
				status.Healthy = dep.CircuitBreaker.IsHealthy(dep.ServiceName)

				if cb, err := dep.CircuitBreaker.GetBreaker(dep.ServiceName); err == nil {
					m := cb.Metrics()
					status.TotalRequests = m.TotalRequests
					status.SuccessfulRequests = m.SuccessfulRequests
					status.FailedRequests = m.FailedRequests
					status.FailureRate = m.FailureRate
				}
			}

			// A custom check overrides the circuit breaker verdict.
			if dep.HealthCheck != nil {
				status.Healthy = dep.HealthCheck()
			}

			if !status.Healthy {
				overallStatus = StatusDegraded
				httpStatus = fiber.StatusServiceUnavailable
			}

			depStatuses[dep.Name] = status
		}

		return c.Status(httpStatus).JSON(fiber.Map{
			"status":       overallStatus,
			"dependencies": depStatuses,
		})
	}
}

// CircuitBreakerSummary creates a Fiber handler exposing the manager's
// aggregate health summary. Degraded and unhealthy summaries are reported
// with HTTP 200; the endpoint describes breaker state, it is not itself a
// readiness probe.
func CircuitBreakerSummary(manager circuitbreaker.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return OK(c, manager.GetHealthSummary())
	}
}

// CircuitBreakerStatus creates a Fiber handler exposing the per-service
// Status of every breaker held by the manager.
func CircuitBreakerStatus(manager circuitbreaker.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return OK(c, manager.GetAllStatus())
	}
}
