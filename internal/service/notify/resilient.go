package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrCircuitOpen означает, что канал временно отключён после серии ошибок.
var ErrCircuitOpen = errors.New("notification circuit breaker is open")

// RetryConfig задаёт повторы доставки с экспоненциальной задержкой.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker размыкается после maxFailures ошибок подряд и пропускает
// одну пробную попытку по истечении resetTimeout.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailure  time.Time
	state        CircuitState
	logger       *log.Entry
	now          func() time.Time
}

// NewCircuitBreaker создаёт circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	if logger == nil {
		logger = log.WithField("component", "notify-circuit-breaker")
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		logger:       logger,
		now:          time.Now,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow решает, можно ли выполнять попытку сейчас.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
		return false
	}
	cb.state = CircuitHalfOpen
	cb.logger.Info("circuit breaker half-open")
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == CircuitHalfOpen {
			cb.logger.Info("circuit breaker closed")
		}
		cb.state = CircuitClosed
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != CircuitOpen {
			cb.logger.WithField("failures", cb.failures).Warn("circuit breaker opened")
		}
		cb.state = CircuitOpen
	}
}

// ResilientChannel повторяет доставку с backoff и не нагружает канал,
// пока circuit breaker разомкнут.
type ResilientChannel struct {
	next    Channel
	retry   RetryConfig
	breaker *CircuitBreaker
	logger  *log.Entry
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewResilientChannel оборачивает канал. breaker может быть nil.
func NewResilientChannel(next Channel, retry RetryConfig, breaker *CircuitBreaker, logger *log.Entry) *ResilientChannel {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.BackoffFactor < 1 {
		retry.BackoffFactor = 1
	}
	if logger == nil {
		logger = log.WithField("component", "notify-resilient-channel")
	}
	return &ResilientChannel{
		next:    next,
		retry:   retry,
		breaker: breaker,
		logger:  logger,
		sleep:   sleepContext,
	}
}

func (c *ResilientChannel) Deliver(ctx context.Context, notice Notice) error {
	delay := c.retry.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if c.breaker != nil && !c.breaker.allow() {
			if lastErr != nil {
				return errors.Join(ErrCircuitOpen, lastErr)
			}
			return ErrCircuitOpen
		}

		err := c.next.Deliver(ctx, notice)
		if c.breaker != nil {
			c.breaker.record(err)
		}
		if err == nil {
			if attempt > 1 {
				c.logger.WithFields(log.Fields{"notice_id": notice.ID, "attempt": attempt}).Info("notification delivered after retry")
			}
			return nil
		}
		lastErr = err

		// отмена вызывающего не повторяется
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || attempt == c.retry.MaxAttempts {
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"notice_id": notice.ID,
			"attempt":   attempt,
			"delay":     delay,
		}).Warn("notification delivery failed, retrying")
		if err := c.sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
		delay = time.Duration(float64(delay) * c.retry.BackoffFactor)
		if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
