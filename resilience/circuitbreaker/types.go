package circuitbreaker

import (
	"context"
	"time"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

// Operation is a unit of work guarded by a breaker. Implementations should
// honor ctx cancellation; the breaker additionally bounds the call with the
// configured CallTimeout.
type Operation func(ctx context.Context) (any, error)

// Fallback is an alternate operation invoked when the primary operation
// fails or is rejected by an open breaker. It receives the cause of the
// primary failure.
type Fallback func(ctx context.Context, cause error) (any, error)

// StateChange describes a single breaker state transition.
type StateChange struct {
	Service string
	From    State
	To      State
	At      time.Time
}

// StateChangeListener is notified when a circuit breaker changes state.
type StateChangeListener interface {
	// OnStateChange is called when a circuit breaker changes state.
	OnStateChange(serviceName string, from State, to State)
}

// Metrics is a point-in-time snapshot of a breaker's observations.
//
// SuccessfulRequests + FailedRequests always equals TotalRequests, and
// FailureRate equals FailedRequests/TotalRequests whenever TotalRequests is
// positive.
type Metrics struct {
	TotalRequests       int64         `json:"total_requests"`
	SuccessfulRequests  int64         `json:"successful_requests"`
	FailedRequests      int64         `json:"failed_requests"`
	Timeouts            int64         `json:"timeouts"`
	CircuitOpenCount    int64         `json:"circuit_open_count"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	FailureRate         float64       `json:"failure_rate"`
	LastFailureTime     time.Time     `json:"last_failure_time,omitzero"`
	LastSuccessTime     time.Time     `json:"last_success_time,omitzero"`
}

// Status is a read-only projection of a breaker's identity, state, counters
// and effective configuration.
type Status struct {
	Name             string        `json:"name"`
	State            State         `json:"state"`
	FailureCount     int           `json:"failure_count"`
	SuccessCount     int           `json:"success_count"`
	NextAttemptAt    time.Time     `json:"next_attempt_at,omitzero"`
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
	CallTimeout      time.Duration `json:"call_timeout"`
	Metrics          Metrics       `json:"metrics"`
}

// Health classifies the aggregate condition of a set of breakers.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// HealthSummary aggregates breaker states across a manager.
type HealthSummary struct {
	TotalBreakers int      `json:"total_breakers"`
	Closed        int      `json:"closed"`
	Open          int      `json:"open"`
	HalfOpen      int      `json:"half_open"`
	OverallHealth Health   `json:"overall_health"`
	OpenServices  []string `json:"open_services"`
}

// Manager manages circuit breakers for external services.
type Manager interface {
	// InitializeBreakers constructs one breaker per name, using the override
	// config when present for that name and the manager default otherwise.
	// Re-initializing an existing name replaces its breaker.
	InitializeBreakers(names []string, overrides map[string]Config) error

	// GetOrCreate returns an existing circuit breaker or creates a new one.
	GetOrCreate(serviceName string, config Config) (*CircuitBreaker, error)

	// GetBreaker returns the breaker for a service, or ErrBreakerNotFound.
	GetBreaker(serviceName string) (*CircuitBreaker, error)

	// Execute runs an operation through the named service's circuit breaker.
	Execute(ctx context.Context, serviceName string, op Operation) (any, error)

	// ExecuteSync is like Execute but runs the operation on the calling
	// goroutine: an operation that outruns CallTimeout is never abandoned,
	// the overrun is recorded as a timeout after it returns. See
	// CircuitBreaker.CallSync.
	ExecuteSync(ctx context.Context, serviceName string, op Operation) (any, error)

	// GetState returns the current state, or StateUnknown for absent services.
	GetState(serviceName string) State

	// GetAllStatus aggregates Status from every breaker.
	GetAllStatus() map[string]Status

	// IsHealthy returns true if the service's circuit breaker is closed.
	IsHealthy(serviceName string) bool

	// Reset resets one circuit breaker to the closed state.
	Reset(serviceName string)

	// ResetAll resets every breaker. Not atomic across breakers.
	ResetAll()

	// GetHealthSummary computes aggregate health across all breakers.
	GetHealthSummary() HealthSummary

	// RegisterStateChangeListener registers a listener for circuit breaker state changes.
	RegisterStateChangeListener(listener StateChangeListener)
}

// HealthChecker performs periodic health checks on services and manages
// circuit breaker recovery.
type HealthChecker interface {
	// Register adds a service to health check.
	Register(serviceName string, healthCheckFn HealthCheckFunc)

	// Start begins the health check loop in a separate goroutine.
	Start()

	// Stop gracefully stops the health checker.
	Stop()

	// GetHealthStatus returns the current health status of all services.
	GetHealthStatus() map[string]string

	// StateChangeListener interface to receive circuit breaker state change notifications.
	StateChangeListener
}

// HealthCheckFunc defines a function that checks service health.
type HealthCheckFunc func(ctx context.Context) error
