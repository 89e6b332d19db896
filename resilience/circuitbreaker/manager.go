package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LerianStudio/lib-resilience/resilience/log"
	"github.com/LerianStudio/lib-resilience/resilience/opentelemetry/metrics"
)

// ErrNilLogger indicates that a nil logger was passed to NewManager.
var ErrNilLogger = errors.New("circuitbreaker: logger must not be nil")

type manager struct {
	breakers       map[string]*CircuitBreaker
	defaultConfig  Config
	listeners      []StateChangeListener
	mu             sync.RWMutex
	logger         log.Logger
	metricsFactory *metrics.MetricsFactory
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*manager)

// WithDefaultConfig sets the config applied to breakers initialized without
// a per-service override.
func WithDefaultConfig(config Config) ManagerOption {
	return func(m *manager) {
		m.defaultConfig = config
	}
}

// WithMetricsFactory attaches an OpenTelemetry metrics factory. A nil
// factory disables metrics without disabling the manager.
func WithMetricsFactory(factory *metrics.MetricsFactory) ManagerOption {
	return func(m *manager) {
		m.metricsFactory = factory
	}
}

// NewManager creates a new circuit breaker manager.
//
//nolint:ireturn
func NewManager(logger log.Logger, opts ...ManagerOption) (Manager, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}

	m := &manager{
		breakers:      make(map[string]*CircuitBreaker),
		defaultConfig: DefaultConfig(),
		listeners:     make([]StateChangeListener, 0),
		logger:        logger,
	}

	for _, opt := range opts {
		opt(m)
	}

	if err := m.defaultConfig.Validate(); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}

	return m, nil
}

func (m *manager) InitializeBreakers(names []string, overrides map[string]Config) error {
	type initialized struct {
		name     string
		override bool
	}

	created := make([]initialized, 0, len(names))

	m.mu.Lock()

	for _, name := range names {
		config, hasOverride := overrides[name]
		if !hasOverride {
			config = m.defaultConfig
		}

		breaker, err := m.newBreakerLocked(name, config)
		if err != nil {
			m.mu.Unlock()

			return err
		}

		// Re-initializing replaces the prior breaker outright, no merge.
		m.breakers[name] = breaker
		created = append(created, initialized{name: name, override: hasOverride})
	}

	m.mu.Unlock()

	// Logging happens outside the critical section.
	for _, c := range created {
		m.logger.Log(context.Background(), log.LevelInfo, "initialized circuit breaker",
			log.String("service", c.name), log.Bool("override", c.override))
	}

	return nil
}

func (m *manager) GetOrCreate(serviceName string, config Config) (*CircuitBreaker, error) {
	m.mu.RLock()
	breaker, exists := m.breakers[serviceName]
	m.mu.RUnlock()

	if exists {
		return breaker, nil
	}

	m.mu.Lock()

	// Double-check after acquiring write lock
	if breaker, exists = m.breakers[serviceName]; exists {
		m.mu.Unlock()

		return breaker, nil
	}

	breaker, err := m.newBreakerLocked(serviceName, config)
	if err != nil {
		m.mu.Unlock()

		return nil, err
	}

	m.breakers[serviceName] = breaker
	m.mu.Unlock()

	m.logger.Log(context.Background(), log.LevelInfo, "created circuit breaker",
		log.String("service", serviceName))

	return breaker, nil
}

// newBreakerLocked builds a breaker whose state changes are routed through
// the manager. A caller-supplied OnStateChange hook still runs after the
// manager's own handling.
func (m *manager) newBreakerLocked(serviceName string, config Config) (*CircuitBreaker, error) {
	userHook := config.OnStateChange

	config.OnStateChange = func(change StateChange) {
		m.handleStateChange(change)

		if userHook != nil {
			userHook(change)
		}
	}

	return New(serviceName, config)
}

func (m *manager) GetBreaker(serviceName string) (*CircuitBreaker, error) {
	m.mu.RLock()
	breaker, exists := m.breakers[serviceName]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrBreakerNotFound, serviceName)
	}

	return breaker, nil
}

func (m *manager) Execute(ctx context.Context, serviceName string, op Operation) (any, error) {
	breaker, err := m.GetBreaker(serviceName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := breaker.Call(ctx, op)
	m.observeExecution(ctx, serviceName, start, err)

	return result, err
}

func (m *manager) ExecuteSync(ctx context.Context, serviceName string, op Operation) (any, error) {
	breaker, err := m.GetBreaker(serviceName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := breaker.CallSync(ctx, op)
	m.observeExecution(ctx, serviceName, start, err)

	return result, err
}

// observeExecution logs and records metrics for one execution outcome.
func (m *manager) observeExecution(ctx context.Context, serviceName string, start time.Time, err error) {
	m.recordCallDuration(serviceName, time.Since(start))

	switch {
	case err == nil:
		m.recordExecution(serviceName, executionResultSuccess)
	case errors.Is(err, ErrOpen):
		m.logger.Log(ctx, log.LevelWarn, "circuit breaker is open, request rejected immediately",
			log.String("service", serviceName))
		m.recordExecution(serviceName, executionResultRejectedOpen)
	case errors.Is(err, ErrCallTimeout):
		m.logger.Log(ctx, log.LevelWarn, "circuit breaker call timed out",
			log.String("service", serviceName))
		m.recordExecution(serviceName, executionResultTimeout)
	default:
		m.recordExecution(serviceName, executionResultError)
	}
}

func (m *manager) GetState(serviceName string) State {
	m.mu.RLock()
	breaker, exists := m.breakers[serviceName]
	m.mu.RUnlock()

	if !exists {
		return StateUnknown
	}

	return breaker.State()
}

func (m *manager) GetAllStatus() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make(map[string]Status, len(m.breakers))

	for name, breaker := range m.breakers {
		statuses[name] = breaker.Status()
	}

	return statuses
}

func (m *manager) IsHealthy(serviceName string) bool {
	// Only the closed state is considered healthy; open and half-open both
	// need recovery before the service can be trusted again.
	return m.GetState(serviceName) == StateClosed
}

func (m *manager) Reset(serviceName string) {
	m.mu.RLock()
	breaker, exists := m.breakers[serviceName]
	m.mu.RUnlock()

	if !exists {
		m.logger.Log(context.Background(), log.LevelWarn, "cannot reset unknown circuit breaker",
			log.String("service", serviceName))

		return
	}

	breaker.Reset()

	m.logger.Log(context.Background(), log.LevelInfo, "circuit breaker reset",
		log.String("service", serviceName))
}

func (m *manager) ResetAll() {
	m.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(m.breakers))

	for _, breaker := range m.breakers {
		breakers = append(breakers, breaker)
	}
	m.mu.RUnlock()

	for _, breaker := range breakers {
		breaker.Reset()
	}

	m.logger.Log(context.Background(), log.LevelInfo, "all circuit breakers reset",
		log.Int("count", len(breakers)))
}

func (m *manager) GetHealthSummary() HealthSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := HealthSummary{
		TotalBreakers: len(m.breakers),
		OpenServices:  make([]string, 0),
	}

	for name, breaker := range m.breakers {
		switch breaker.State() {
		case StateClosed:
			summary.Closed++
		case StateOpen:
			summary.Open++
			summary.OpenServices = append(summary.OpenServices, name)
		case StateHalfOpen:
			summary.HalfOpen++
		}
	}

	sort.Strings(summary.OpenServices)

	switch {
	case summary.Open == 0:
		summary.OverallHealth = HealthHealthy
	case summary.Open == summary.TotalBreakers:
		summary.OverallHealth = HealthUnhealthy
	default:
		summary.OverallHealth = HealthDegraded
	}

	return summary
}

// RegisterStateChangeListener registers a listener for state change notifications.
func (m *manager) RegisterStateChangeListener(listener StateChangeListener) {
	if listener == nil {
		m.logger.Log(context.Background(), log.LevelWarn, "attempted to register a nil state change listener")

		return
	}

	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	total := len(m.listeners)
	m.mu.Unlock()

	m.logger.Log(context.Background(), log.LevelDebug, "registered state change listener",
		log.Int("total", total))
}

// handleStateChange logs transitions, records metrics and notifies listeners.
func (m *manager) handleStateChange(change StateChange) {
	ctx := context.Background()

	switch change.To {
	case StateOpen:
		m.logger.Log(ctx, log.LevelError, "circuit breaker opened, requests will fast-fail",
			log.String("service", change.Service), log.String("from", string(change.From)))
	case StateHalfOpen:
		m.logger.Log(ctx, log.LevelInfo, "circuit breaker half-open, testing service recovery",
			log.String("service", change.Service))
	case StateClosed:
		m.logger.Log(ctx, log.LevelInfo, "circuit breaker closed, service is healthy",
			log.String("service", change.Service))
	}

	m.recordStateTransition(change.Service, change.From, change.To)
	m.recordOpenCircuits()

	m.mu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, listener := range listeners {
		// Notify in goroutine to avoid blocking circuit breaker operations
		go func(l StateChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Log(ctx, log.LevelError, "state change listener panicked",
						log.String("service", change.Service), log.Any("panic", r))
				}
			}()

			l.OnStateChange(change.Service, change.From, change.To)
		}(listener)
	}
}
