// Package zap provides the zap-backed implementation of log.Logger.
//
// Log entries emitted with a context carrying an active OpenTelemetry span
// are automatically annotated with trace_id and span_id so they correlate
// with distributed traces.
package zap
