package circuitbreaker

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/LerianStudio/lib-resilience/resilience/backoff"
	"github.com/LerianStudio/lib-resilience/resilience/log"
)

var (
	// ErrInvalidHealthCheckInterval indicates that the health check interval must be positive
	ErrInvalidHealthCheckInterval = errors.New("circuitbreaker: health check interval must be positive")
	// ErrInvalidHealthCheckTimeout indicates that the health check timeout must be positive
	ErrInvalidHealthCheckTimeout = errors.New("circuitbreaker: health check timeout must be positive")
)

// maxProbeBackoffFactor bounds how far probe pacing can stretch beyond the
// base interval for a persistently failing service.
const maxProbeBackoffFactor = 8

// healthChecker performs periodic health checks and manages circuit breaker recovery.
//
// Probes against a failing service are paced with exponential backoff and
// jitter, so a service that stays down is probed less and less often, up to
// maxProbeBackoffFactor times the base interval.
type healthChecker struct {
	manager        Manager
	services       map[string]HealthCheckFunc
	interval       time.Duration
	checkTimeout   time.Duration // Timeout for individual health check operations
	logger         log.Logger
	stopChan       chan struct{}
	immediateCheck chan string // Channel to trigger immediate health check for a service
	wg             sync.WaitGroup
	mu             sync.RWMutex

	// probe pacing state, guarded by mu
	failStreaks map[string]int
	nextProbeAt map[string]time.Time
}

// NewHealthChecker creates a new health checker.
// interval: how often the check loop wakes up
// checkTimeout: timeout for each individual health check operation
//
//nolint:ireturn
func NewHealthChecker(manager Manager, interval, checkTimeout time.Duration, logger log.Logger) (HealthChecker, error) {
	if interval <= 0 {
		return nil, ErrInvalidHealthCheckInterval
	}

	if checkTimeout <= 0 {
		return nil, ErrInvalidHealthCheckTimeout
	}

	return &healthChecker{
		manager:        manager,
		services:       make(map[string]HealthCheckFunc),
		interval:       interval,
		checkTimeout:   checkTimeout,
		logger:         logger,
		stopChan:       make(chan struct{}),
		immediateCheck: make(chan string, 10),
		failStreaks:    make(map[string]int),
		nextProbeAt:    make(map[string]time.Time),
	}, nil
}

// Register adds a service to health check
func (hc *healthChecker) Register(serviceName string, healthCheckFn HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.services[serviceName] = healthCheckFn
	hc.logger.Log(context.Background(), log.LevelInfo, "registered health check",
		log.String("service", serviceName))
}

// Start begins the health check loop
func (hc *healthChecker) Start() {
	hc.wg.Add(1)

	go hc.healthCheckLoop()

	hc.logger.Log(context.Background(), log.LevelInfo, "health checker started",
		log.Duration("interval", hc.interval))
}

// Stop gracefully stops the health checker
func (hc *healthChecker) Stop() {
	close(hc.stopChan)
	hc.wg.Wait()
	hc.logger.Log(context.Background(), log.LevelInfo, "health checker stopped")
}

func (hc *healthChecker) healthCheckLoop() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	// By entering the select loop immediately, the health checker is responsive
	// to immediate checks from the moment it starts.
	for {
		select {
		case <-ticker.C:
			hc.performHealthChecks()
		case serviceName := <-hc.immediateCheck:
			hc.checkServiceHealth(serviceName, true)
		case <-hc.stopChan:
			return
		}
	}
}

func (hc *healthChecker) performHealthChecks() {
	hc.mu.RLock()
	// Create snapshot to avoid holding lock during checks
	services := make(map[string]HealthCheckFunc, len(hc.services))
	maps.Copy(services, hc.services)
	hc.mu.RUnlock()

	for serviceName := range services {
		hc.checkServiceHealth(serviceName, false)
	}
}

// checkServiceHealth probes one service and resets its breaker on success.
// When force is false the probe is skipped until the service's backoff window
// has elapsed.
func (hc *healthChecker) checkServiceHealth(serviceName string, force bool) {
	hc.mu.RLock()
	healthCheckFn, exists := hc.services[serviceName]
	nextProbe := hc.nextProbeAt[serviceName]
	hc.mu.RUnlock()

	if !exists {
		hc.logger.Log(context.Background(), log.LevelWarn, "no health check registered",
			log.String("service", serviceName))

		return
	}

	// Skip if circuit breaker is already healthy
	if hc.manager.IsHealthy(serviceName) {
		hc.clearBackoff(serviceName)

		return
	}

	if !force && time.Now().Before(nextProbe) {
		return
	}

	hc.logger.Log(context.Background(), log.LevelInfo, "attempting to heal service",
		log.String("service", serviceName))

	ctx, cancel := context.WithTimeout(context.Background(), hc.checkTimeout)
	err := healthCheckFn(ctx)

	cancel()

	if err == nil {
		hc.logger.Log(context.Background(), log.LevelInfo, "service recovered, resetting circuit breaker",
			log.String("service", serviceName))
		hc.manager.Reset(serviceName)
		hc.clearBackoff(serviceName)

		return
	}

	delay := hc.bumpBackoff(serviceName)
	hc.logger.Log(context.Background(), log.LevelWarn, "service still unhealthy",
		log.String("service", serviceName), log.Err(err), log.Duration("next_probe_in", delay))
}

// bumpBackoff records a failed probe and returns the delay until the next one.
func (hc *healthChecker) bumpBackoff(serviceName string) time.Duration {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	streak := hc.failStreaks[serviceName]
	hc.failStreaks[serviceName] = streak + 1

	delay := hc.interval + backoff.Capped(
		backoff.ExponentialWithJitter(hc.interval, streak),
		maxProbeBackoffFactor*hc.interval,
	)
	hc.nextProbeAt[serviceName] = time.Now().Add(delay)

	return delay
}

func (hc *healthChecker) clearBackoff(serviceName string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	delete(hc.failStreaks, serviceName)
	delete(hc.nextProbeAt, serviceName)
}

// GetHealthStatus returns the current health status of all services
func (hc *healthChecker) GetHealthStatus() map[string]string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := make(map[string]string)

	for serviceName := range hc.services {
		cbState := hc.manager.GetState(serviceName)
		status[serviceName] = string(cbState)
	}

	return status
}

// OnStateChange implements StateChangeListener. A breaker opening triggers an
// immediate out-of-band probe for that service.
func (hc *healthChecker) OnStateChange(serviceName string, from State, to State) {
	if to != StateOpen {
		return
	}

	// Non-blocking send to avoid deadlock
	select {
	case hc.immediateCheck <- serviceName:
	default:
		hc.logger.Log(context.Background(), log.LevelWarn, "immediate health check channel full",
			log.String("service", serviceName))
	}
}
