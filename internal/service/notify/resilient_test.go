package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyChannel падает первые failures раз.
type flakyChannel struct {
	failures int
	calls    int
}

func (c *flakyChannel) Deliver(ctx context.Context, _ Notice) error {
	c.calls++
	if c.calls <= c.failures {
		return errors.New("broker unavailable")
	}
	return ctx.Err()
}

func noSleep(t *testing.T, c *ResilientChannel) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return &delays
}

func TestResilientChannel_RetriesWithBackoff(t *testing.T) {
	next := &flakyChannel{failures: 2}
	channel := NewResilientChannel(next, RetryConfig{
		MaxAttempts: 4, InitialDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond, BackoffFactor: 2,
	}, nil, nil)
	delays := noSleep(t, channel)

	require.NoError(t, channel.Deliver(context.Background(), Notice{ID: "n-1"}))
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 150 * time.Millisecond}, *delays)
}

func TestResilientChannel_GivesUpAfterMaxAttempts(t *testing.T) {
	next := &flakyChannel{failures: 10}
	channel := NewResilientChannel(next, RetryConfig{MaxAttempts: 3}, nil, nil)
	noSleep(t, channel)

	err := channel.Deliver(context.Background(), Notice{ID: "n-1"})
	assert.ErrorContains(t, err, "broker unavailable")
	assert.Equal(t, 3, next.calls)
}

func TestResilientChannel_DoesNotRetryCanceledContext(t *testing.T) {
	next := &flakyChannel{}
	channel := NewResilientChannel(next, DefaultRetryConfig(), nil, nil)
	delays := noSleep(t, channel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, channel.Deliver(ctx, Notice{}), context.Canceled)
	assert.Equal(t, 1, next.calls)
	assert.Empty(t, *delays)
}

func TestResilientChannel_StopsWhenSleepInterrupted(t *testing.T) {
	next := &flakyChannel{failures: 10}
	channel := NewResilientChannel(next, RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := channel.Deliver(ctx, Notice{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, next.calls)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	breaker := NewCircuitBreaker(2, time.Minute, nil)
	breaker.now = func() time.Time { return now }

	next := &flakyChannel{failures: 3}
	channel := NewResilientChannel(next, RetryConfig{MaxAttempts: 5}, breaker, nil)
	noSleep(t, channel)

	err := channel.Deliver(context.Background(), Notice{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, CircuitOpen, breaker.State())

	// пока таймаут не истёк, канал не вызывается
	assert.ErrorIs(t, channel.Deliver(context.Background(), Notice{}), ErrCircuitOpen)
	assert.Equal(t, 2, next.calls)

	// пробная попытка в half-open падает и снова размыкает breaker
	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, channel.Deliver(context.Background(), Notice{}), ErrCircuitOpen)
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, CircuitOpen, breaker.State())

	now = now.Add(2 * time.Minute)
	require.NoError(t, channel.Deliver(context.Background(), Notice{}))
	assert.Equal(t, CircuitClosed, breaker.State())
	assert.Equal(t, "closed", breaker.State().String())
}
