package circuitbreaker

import "context"

// Wrap binds an operation to a breaker, returning an Operation that always
// runs through it. Useful for building guarded clients once and passing them
// around as plain functions.
func Wrap(cb *CircuitBreaker, op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		return cb.Call(ctx, op)
	}
}

// WrapService binds an operation to a named breaker managed by m. The breaker
// is resolved on every invocation, so re-initializing the manager takes
// effect without rebuilding the wrapper.
func WrapService(m Manager, serviceName string, op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		return m.Execute(ctx, serviceName, op)
	}
}
