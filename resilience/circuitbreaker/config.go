package circuitbreaker

import (
	"fmt"
	"time"
)

// Default configuration values applied to zero-valued Config fields.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
	DefaultSuccessThreshold = 3
	DefaultCallTimeout      = 30 * time.Second
)

// Config holds circuit breaker configuration. Zero values fall back to the
// package defaults; negative values are rejected by Validate.
type Config struct {
	// FailureThreshold is the net failure count while closed that trips the
	// breaker open. Successes while closed decay the count by one, so the
	// threshold is reached only when failures outpace successes.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before allowing a
	// probe call through.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive successes while
	// half-open required to close the breaker again.
	SuccessThreshold int

	// CallTimeout bounds each guarded call.
	CallTimeout time.Duration

	// IsRetryable classifies which errors count as breaker failures. Errors
	// it rejects propagate to the caller without touching breaker state.
	// Nil means every error counts.
	IsRetryable func(error) bool

	// Fallback, when set, is invoked in place of a failed or fast-failed
	// primary operation.
	Fallback Fallback

	// OnStateChange is called (in its own goroutine) on every state
	// transition.
	OnStateChange func(StateChange)
}

// Validate checks the configuration for values that cannot be defaulted away.
func (c Config) Validate() error {
	if c.FailureThreshold < 0 {
		return fmt.Errorf("%w: FailureThreshold must not be negative", ErrInvalidConfig)
	}

	if c.SuccessThreshold < 0 {
		return fmt.Errorf("%w: SuccessThreshold must not be negative", ErrInvalidConfig)
	}

	if c.RecoveryTimeout < 0 {
		return fmt.Errorf("%w: RecoveryTimeout must not be negative", ErrInvalidConfig)
	}

	if c.CallTimeout < 0 {
		return fmt.Errorf("%w: CallTimeout must not be negative", ErrInvalidConfig)
	}

	return nil
}

// withDefaults returns a copy of the config with zero values replaced by the
// package defaults.
func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}

	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}

	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}

	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}

	return c
}

// DefaultConfig provides balanced settings for most services.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
		SuccessThreshold: DefaultSuccessThreshold,
		CallTimeout:      DefaultCallTimeout,
	}
}

// AggressiveConfig for services requiring fast failure detection.
func AggressiveConfig() Config {
	return Config{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		CallTimeout:      10 * time.Second,
	}
}

// ConservativeConfig for services that should tolerate more failures.
func ConservativeConfig() Config {
	return Config{
		FailureThreshold: 10,
		RecoveryTimeout:  2 * time.Minute,
		SuccessThreshold: 5,
		CallTimeout:      60 * time.Second,
	}
}

// HTTPServiceConfig optimized for external HTTP APIs.
// Faster failure detection with shorter timeout suitable for HTTP calls.
func HTTPServiceConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  DefaultRecoveryTimeout,
		SuccessThreshold: 2,
		CallTimeout:      10 * time.Second,
	}
}

// DatabaseConfig optimized for database connections.
// More tolerant of failures since databases should be stable and temporary
// network issues shouldn't immediately trip the breaker.
func DatabaseConfig() Config {
	return Config{
		FailureThreshold: 8,
		RecoveryTimeout:  90 * time.Second,
		SuccessThreshold: 3,
		CallTimeout:      45 * time.Second,
	}
}
