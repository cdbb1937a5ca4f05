package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/tianyi-liu/premiumdiff/internal/models"
)

// Interface defines the contract with the external market-data gateway.
//
// Implementations must tolerate concurrent calls: the batch fetcher issues
// quote lookups from multiple goroutines.
type Interface interface {
	OptionBoard(ctx context.Context, class models.UnderlyingClass, month models.ContractMonth) ([]BoardRow, error)
	RiskIndicators(ctx context.Context, date string) ([]RiskIndicatorRow, error)
	QuoteFields(ctx context.Context, securityID string) ([]FieldValueRow, error)
	SpotFields(ctx context.Context, symbol string) ([]FieldValueRow, error)
}

// Ensure Client implements Interface at compile time.
var _ Interface = (*Client)(nil)

// CircuitBreakerProvider wraps a provider with circuit breaker functionality
// so a flapping gateway stops burning the per-refresh latency budget.
type CircuitBreakerProvider struct {
	provider Interface
	breaker  *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with sensible defaults.
func NewCircuitBreakerProvider(p Interface, log *logrus.Logger) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(p, log, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings.
func NewCircuitBreakerProviderWithSettings(p Interface, log *logrus.Logger, settings CircuitBreakerSettings) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "GatewayCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if log != nil {
				log.Warnf("Circuit breaker %s state changed from %s to %s", name, from, to)
			}
		},
	}

	return &CircuitBreakerProvider{
		provider: p,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// OptionBoard wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) OptionBoard(ctx context.Context, class models.UnderlyingClass, month models.ContractMonth) ([]BoardRow, error) {
	return execBreaker(c.breaker, func() ([]BoardRow, error) { return c.provider.OptionBoard(ctx, class, month) })
}

// RiskIndicators wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) RiskIndicators(ctx context.Context, date string) ([]RiskIndicatorRow, error) {
	return execBreaker(c.breaker, func() ([]RiskIndicatorRow, error) { return c.provider.RiskIndicators(ctx, date) })
}

// QuoteFields wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) QuoteFields(ctx context.Context, securityID string) ([]FieldValueRow, error) {
	return execBreaker(c.breaker, func() ([]FieldValueRow, error) { return c.provider.QuoteFields(ctx, securityID) })
}

// SpotFields wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) SpotFields(ctx context.Context, symbol string) ([]FieldValueRow, error) {
	return execBreaker(c.breaker, func() ([]FieldValueRow, error) { return c.provider.SpotFields(ctx, symbol) })
}

// Ensure CircuitBreakerProvider implements Interface at compile time.
var _ Interface = (*CircuitBreakerProvider)(nil)
