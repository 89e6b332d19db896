// Package log defines the structured logging contract used across
// lib-resilience.
//
// The Logger interface is intentionally small: one Log method with a level
// and typed fields, plus With/WithGroup for contextual children. Concrete
// implementations live elsewhere (see the zap package); NopLogger is provided
// for tests and for callers that want logging disabled.
package log
