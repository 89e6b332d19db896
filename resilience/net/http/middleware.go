package http

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/lib-resilience/resilience/circuitbreaker"
)

// WithCircuitBreaker creates a middleware that routes the downstream handler
// chain through the named service's circuit breaker.
//
// While the breaker is open, requests are rejected with HTTP 503 and a
// Retry-After header derived from the remaining recovery window.
//
// The handler chain always runs on the request goroutine and to completion;
// a *fiber.Ctx is pooled and must never be touched after the handler
// returns, so the breaker's timeout never abandons it. The CallTimeout
// deadline is surfaced through the request's user context: handlers that
// honor it return early and the request is answered with HTTP 504, while
// handlers that ignore it and succeed count as slow successes.
func WithCircuitBreaker(manager circuitbreaker.Manager, serviceName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, err := manager.ExecuteSync(c.UserContext(), serviceName, func(ctx context.Context) (any, error) {
			parent := c.UserContext()
			c.SetUserContext(ctx)

			defer c.SetUserContext(parent)

			return nil, c.Next()
		})

		var openErr *circuitbreaker.OpenError
		if errors.As(err, &openErr) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(openErr)))

			return ServiceUnavailable(c, "service_unavailable", "Service Unavailable",
				"The service is temporarily unavailable. Please retry later.")
		}

		if errors.Is(err, circuitbreaker.ErrCallTimeout) {
			return JSONResponse(c, fiber.StatusGatewayTimeout, ErrorResponse{
				Code:    "gateway_timeout",
				Title:   "Gateway Timeout",
				Message: "The service did not respond in time.",
			})
		}

		return err
	}
}

// retryAfterSeconds rounds the remaining recovery window up to whole seconds,
// never below 1 so clients always wait before retrying.
func retryAfterSeconds(err *circuitbreaker.OpenError) int {
	seconds := int(math.Ceil(err.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}

	return seconds
}
