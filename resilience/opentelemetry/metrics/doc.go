// Package metrics provides a thread-safe factory for OpenTelemetry
// instruments with lazy creation and a fluent builder API for recording
// values with labels.
package metrics
