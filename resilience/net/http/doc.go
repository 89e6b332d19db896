// Package http provides Fiber handlers and middleware for exposing circuit
// breaker state over HTTP: a dependency-aware health endpoint and a guard
// middleware that sheds traffic for services whose breaker is open.
package http
