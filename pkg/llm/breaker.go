package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/retry"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the trip threshold and the cool-down.
type CircuitBreakerConfig struct {
	Threshold  int
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures and probes
// again after 30 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, ResetAfter: 30 * time.Second}
}

// CircuitBreaker stops calling a provider that keeps failing.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultCircuitBreakerConfig().Threshold
	}
	return &CircuitBreaker{
		threshold:  cfg.Threshold,
		resetAfter: cfg.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow reports whether a request may proceed. After the cool-down an open
// circuit lets exactly one probe through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return fmt.Errorf("circuit breaker open: language model failed %d times in a row", cb.consecutiveFails)
	default:
		return fmt.Errorf("circuit breaker half-open: waiting for probe request")
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Guarded retries transient provider errors and short-circuits a provider
// that is down.
type Guarded struct {
	next    TextService
	retry   *retry.Config
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewGuarded wraps next. maxRetries is the number of extra attempts for
// retryable errors.
func NewGuarded(next TextService, maxRetries int, cb CircuitBreakerConfig, logger *zap.Logger) *Guarded {
	return &Guarded{
		next:    next,
		retry:   retry.WithMaxRetries(maxRetries),
		breaker: NewCircuitBreaker(cb),
		logger:  logger.Named("llm"),
	}
}

// Generate implements TextService.
func (g *Guarded) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := g.breaker.Allow(); err != nil {
		return "", NewError(ErrorTypeEndpoint, "provider unavailable", false, err)
	}

	attempts := 0
	text, err := retry.DoIfRetryable(ctx, g.retry, func() (string, error) {
		attempts++
		return g.next.Generate(ctx, system, prompt)
	})
	if err != nil {
		g.breaker.RecordFailure()
		g.logger.Warn("Language model call failed",
			zap.Int("attempts", attempts),
			zap.String("error_type", string(GetErrorType(err))),
			zap.String("circuit", g.breaker.State().String()))
		return "", err
	}
	g.breaker.RecordSuccess()
	return text, nil
}
