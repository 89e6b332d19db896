//go:build unit

package circuitbreaker_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LerianStudio/lib-resilience/resilience/circuitbreaker"
	"github.com/LerianStudio/lib-resilience/resilience/log"
)

func ExampleManager_Execute_fallbackOnOpen() {
	mgr, err := circuitbreaker.NewManager(log.NewNop())
	if err != nil {
		return
	}

	_, err = mgr.GetOrCreate("core-ledger", circuitbreaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})
	if err != nil {
		return
	}

	ctx := context.Background()

	_, firstErr := mgr.Execute(ctx, "core-ledger", func(ctx context.Context) (any, error) {
		return nil, errors.New("upstream timeout")
	})

	_, secondErr := mgr.Execute(ctx, "core-ledger", func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	response := "primary"
	if secondErr != nil {
		response = "cached-response"
	}

	fmt.Println(firstErr != nil)
	fmt.Println(mgr.GetState("core-ledger") == circuitbreaker.StateOpen)
	fmt.Println(strings.Contains(secondErr.Error(), "currently unavailable"))
	fmt.Println(response)

	// Output:
	// true
	// true
	// true
	// cached-response
}

func ExampleManager_GetHealthSummary() {
	mgr, err := circuitbreaker.NewManager(log.NewNop(), circuitbreaker.WithDefaultConfig(circuitbreaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	}))
	if err != nil {
		return
	}

	if err := mgr.InitializeBreakers([]string{"payments", "ledger"}, nil); err != nil {
		return
	}

	_, _ = mgr.Execute(context.Background(), "payments", func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	})

	summary := mgr.GetHealthSummary()

	fmt.Println(summary.OverallHealth)
	fmt.Println(summary.Open)
	fmt.Println(summary.OpenServices)

	// Output:
	// degraded
	// 1
	// [payments]
}

func ExampleCircuitBreaker_Call_fallback() {
	cb, err := circuitbreaker.New("catalog", circuitbreaker.Config{
		FailureThreshold: 3,
		Fallback: func(ctx context.Context, cause error) (any, error) {
			return "stale-catalog", nil
		},
	})
	if err != nil {
		return
	}

	result, err := cb.Call(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("catalog service down")
	})

	fmt.Println(result)
	fmt.Println(err)

	// Output:
	// stale-catalog
	// <nil>
}
