package resiliency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/broker"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/infra"
)

// ErrCircuitOpen is returned when the venue circuit is open and the
// call was short-circuited without touching the adapter.
var ErrCircuitOpen = errors.New("resiliency: circuit open")

// ErrRetriesExhausted wraps the last transient error once the retry
// budget is spent.
var ErrRetriesExhausted = errors.New("resiliency: retries exhausted")

// Config tunes retry, pacing and breaker behavior.
type Config struct {
	MaxRetries    int           // Retries after the first attempt.
	Backoff       infra.BackoffPolicy
	SubmitTimeout time.Duration // Per-attempt acknowledgement timeout.
	Breaker       CircuitBreakerConfig
	DLQCapacity   int
	RateLimit     int     // Max burst of adapter calls; 0 disables pacing.
	RatePerSecond float64 // Token refill rate.
}

// ConfigFrom maps the application configuration onto resiliency tuning.
func ConfigFrom(cfg *infra.Config, venue string) Config {
	return Config{
		MaxRetries: cfg.Resiliency.MaxRetries,
		Backoff: infra.BackoffPolicy{
			Initial: time.Duration(cfg.Resiliency.InitialBackoffMS) * time.Millisecond,
			Max:     time.Duration(cfg.Resiliency.MaxBackoffMS) * time.Millisecond,
		},
		SubmitTimeout: time.Duration(cfg.Resiliency.SubmitTimeoutMS) * time.Millisecond,
		Breaker: CircuitBreakerConfig{
			Name:             venue,
			FailureThreshold: cfg.Resiliency.FailureThreshold,
			FailureWindow:    time.Duration(cfg.Resiliency.FailureWindowSec) * time.Second,
			Cooldown:         time.Duration(cfg.Resiliency.CooldownSec) * time.Second,
		},
		DLQCapacity:   cfg.Resiliency.DLQCapacity,
		RateLimit:     cfg.Resiliency.RateLimit,
		RatePerSecond: cfg.Resiliency.RatePerSecond,
	}
}

// FailureStats is the operator-facing view of venue health.
type FailureStats struct {
	CircuitState string `json:"circuit_state"`
	FailureCount int    `json:"failure_count"`
	DLQSize      int    `json:"dlq_size"`
}

// Manager wraps adapter calls that can fail transiently. It separates
// "is the venue currently healthy" (circuit breaker) from "should this
// request be retried" (retry policy) so requests don't spin-retry into
// a known-down venue.
type Manager struct {
	adapter broker.Adapter
	cfg     Config
	breaker *CircuitBreaker
	dlq     *DeadLetterQueue
	limiter *infra.RateLimiter // Nil when pacing is disabled.
}

// NewManager builds the resiliency layer around one adapter.
func NewManager(adapter broker.Adapter, cfg Config) *Manager {
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultCircuitBreakerConfig(adapter.Name())
	}
	m := &Manager{
		adapter: adapter,
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.Breaker),
		dlq:     NewDeadLetterQueue(cfg.DLQCapacity),
	}
	if cfg.RateLimit > 0 && cfg.RatePerSecond > 0 {
		m.limiter = infra.NewRateLimiter(cfg.RateLimit, cfg.RatePerSecond)
	}
	return m
}

// WithDeadLetterSink attaches persistence for dead letters.
func (m *Manager) WithDeadLetterSink(sink DeadLetterSink) *Manager {
	m.dlq.WithSink(sink)
	return m
}

// SubmitOrder submits through the adapter with bounded exponential
// backoff while the circuit admits calls.
//
// Error classes:
//   - order-level rejections (broker.RejectionError) are terminal and
//     never retried;
//   - transient errors are retried up to MaxRetries, then dead-lettered
//     under ErrRetriesExhausted;
//   - an open circuit short-circuits without an adapter call and
//     dead-letters under ErrCircuitOpen.
func (m *Manager) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	var lastErr error

	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := m.cfg.Backoff.Delay(attempt - 1)
			slog.Debug("Retrying order submission",
				slog.String("order_id", order.ID),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay))
			select {
			case <-ctx.Done():
				m.dlq.Append(order, "context cancelled during retry: "+ctx.Err().Error())
				return order, ctx.Err()
			case <-time.After(delay):
			}
		}

		// Pacing before the breaker check: once Allow seizes the
		// half-open probe, nothing may block before the adapter call.
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				m.dlq.Append(order, "context cancelled awaiting rate limit")
				return order, err
			}
		}

		if !m.breaker.Allow() {
			m.dlq.Append(order, "circuit open")
			return order, ErrCircuitOpen
		}

		ack, err := m.submitOnce(ctx, order)
		if err == nil {
			m.breaker.RecordSuccess()
			return ack, nil
		}

		if broker.IsRejection(err) {
			// Order-level rejection: the venue is healthy, the order is
			// not. Terminal, never retried, not a breaker failure.
			m.breaker.RecordSuccess()
			ack.Status = domain.StatusRejected
			ack.RejectReason = err.Error()
			return ack, err
		}

		m.breaker.RecordFailure()
		lastErr = err
		slog.Warn("Order submission attempt failed",
			slog.String("order_id", order.ID),
			slog.Int("attempt", attempt),
			slog.Any("err", err))
	}

	m.dlq.Append(order, "retries exhausted: "+lastErr.Error())
	return order, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// submitOnce performs one adapter call under the per-attempt timeout.
func (m *Manager) submitOnce(ctx context.Context, order domain.Order) (domain.Order, error) {
	if m.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.SubmitTimeout)
		defer cancel()
	}

	type result struct {
		ack domain.Order
		err error
	}
	done := make(chan result, 1)
	go func() {
		ack, err := m.adapter.SubmitOrder(ctx, order)
		done <- result{ack, err}
	}()

	select {
	case <-ctx.Done():
		return order, fmt.Errorf("submit acknowledgement timeout: %w", ctx.Err())
	case r := <-done:
		return r.ack, r.err
	}
}

// CancelOrder forwards a cancellation. Cancels are fire-and-forget and
// not retried: acceptance does not guarantee no later fill anyway.
func (m *Manager) CancelOrder(ctx context.Context, orderID string) bool {
	return m.adapter.CancelOrder(ctx, orderID)
}

// GetFailureStats returns the operator-facing health snapshot.
func (m *Manager) GetFailureStats() FailureStats {
	return FailureStats{
		CircuitState: m.breaker.GetState().String(),
		FailureCount: m.breaker.FailureCount(),
		DLQSize:      m.dlq.Size(),
	}
}

// DeadLetters exposes the queued dead letters, oldest first.
func (m *Manager) DeadLetters() []DeadLetter {
	return m.dlq.Entries()
}
