package circuitbreaker

import (
	"context"
	"time"

	"github.com/LerianStudio/lib-resilience/resilience/log"
	"github.com/LerianStudio/lib-resilience/resilience/opentelemetry/metrics"
)

// Execution result label values for circuit_breaker_executions_total.
const (
	executionResultSuccess      = "success"
	executionResultError        = "error"
	executionResultTimeout      = "timeout"
	executionResultRejectedOpen = "rejected_open"
)

var (
	executionMetric = metrics.Metric{
		Name:        "circuit_breaker_executions_total",
		Description: "Total number of executions routed through a circuit breaker, by outcome",
		Unit:        "1",
	}

	stateTransitionMetric = metrics.Metric{
		Name:        "circuit_breaker_state_transitions_total",
		Description: "Total number of circuit breaker state transitions",
		Unit:        "1",
	}

	callDurationMetric = metrics.Metric{
		Name:        "circuit_breaker_call_duration_milliseconds",
		Description: "Duration of calls routed through a circuit breaker",
		Unit:        "ms",
		Buckets:     metrics.DefaultLatencyBuckets,
	}

	openCircuitsMetric = metrics.Metric{
		Name:        "circuit_breaker_open_circuits",
		Description: "Number of circuit breakers currently in the open state",
		Unit:        "1",
	}
)

// recordExecution counts one execution outcome. A manager without a metrics
// factory records nothing.
func (m *manager) recordExecution(serviceName, result string) {
	if m.metricsFactory == nil {
		return
	}

	counter, err := m.metricsFactory.Counter(executionMetric)
	if err != nil {
		m.logger.Log(context.Background(), log.LevelWarn, "failed to create execution counter",
			log.String("service", serviceName), log.Err(err))

		return
	}

	_ = counter.WithLabels(map[string]string{
		"service": metrics.SanitizeMetricLabel(serviceName),
		"result":  result,
	}).AddOne(context.Background())
}

func (m *manager) recordStateTransition(serviceName string, from, to State) {
	if m.metricsFactory == nil {
		return
	}

	counter, err := m.metricsFactory.Counter(stateTransitionMetric)
	if err != nil {
		m.logger.Log(context.Background(), log.LevelWarn, "failed to create state transition counter",
			log.String("service", serviceName), log.Err(err))

		return
	}

	_ = counter.WithLabels(map[string]string{
		"service":    metrics.SanitizeMetricLabel(serviceName),
		"from_state": string(from),
		"to_state":   string(to),
	}).AddOne(context.Background())
}

// recordOpenCircuits publishes the current count of open breakers.
func (m *manager) recordOpenCircuits() {
	if m.metricsFactory == nil {
		return
	}

	gauge, err := m.metricsFactory.Gauge(openCircuitsMetric)
	if err != nil {
		m.logger.Log(context.Background(), log.LevelWarn, "failed to create open circuits gauge",
			log.Err(err))

		return
	}

	_ = gauge.Set(context.Background(), int64(m.GetHealthSummary().Open))
}

func (m *manager) recordCallDuration(serviceName string, elapsed time.Duration) {
	if m.metricsFactory == nil {
		return
	}

	histogram, err := m.metricsFactory.Histogram(callDurationMetric)
	if err != nil {
		m.logger.Log(context.Background(), log.LevelWarn, "failed to create call duration histogram",
			log.String("service", serviceName), log.Err(err))

		return
	}

	_ = histogram.WithLabels(map[string]string{
		"service": metrics.SanitizeMetricLabel(serviceName),
	}).Record(context.Background(), elapsed.Milliseconds())
}
