package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerClosedPassesThrough(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3})

	calls := 0
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()
	boom := errors.New("connection refused")

	calls := 0
	fail := func(ctx context.Context) error {
		calls++
		return boom
	}

	require.ErrorIs(t, b.Execute(ctx, fail), boom)
	require.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, BreakerOpen, b.State())

	// Open: rejected without calling through.
	err := b.Execute(ctx, fail)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 2, calls)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	clock := time.Now()
	b.now = func() time.Time { return clock }

	require.Error(t, b.Execute(ctx, func(ctx context.Context) error {
		return errors.New("boom")
	}))
	require.Equal(t, BreakerOpen, b.State())

	// Cooldown elapsed: one probe is allowed.
	clock = clock.Add(2 * time.Minute)
	require.Equal(t, BreakerHalfOpen, b.State())

	// Failed probe reopens.
	require.Error(t, b.Execute(ctx, func(ctx context.Context) error {
		return errors.New("still down")
	}))
	require.Equal(t, BreakerOpen, b.State())

	// Successful probe closes.
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, b.Execute(ctx, func(ctx context.Context) error { return nil }))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerShouldTripFilter(t *testing.T) {
	notFound := errors.New("not found")
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, notFound) },
	})
	ctx := context.Background()

	// Filtered errors pass through without tripping.
	require.ErrorIs(t, b.Execute(ctx, func(ctx context.Context) error { return notFound }), notFound)
	assert.Equal(t, BreakerClosed, b.State())

	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errors.New("i/o timeout") }))
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreakerOnStateChange(t *testing.T) {
	var transitions []string
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(from, to BreakerState) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	require.Error(t, b.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	}))
	assert.Equal(t, []string{"closed>open"}, transitions)
}

func TestBreakerDoReturnsValue(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	val, err := BreakerDo(ctx, b, func(ctx context.Context) ([]byte, error) {
		return []byte("payload"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), val)

	_, err = BreakerDo(ctx, b, func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	_, err = BreakerDo(ctx, b, func(ctx context.Context) ([]byte, error) {
		t.Fatal("must not be called while open")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
}
