package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("store unavailable")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, coolDown time.Duration) (*CircuitBreaker, *fakeClock, *[]State) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)}
	var transitions []State
	cb := New(Config{
		Name:             "history",
		FailureThreshold: threshold,
		CoolDown:         coolDown,
		OnStateChange: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})
	cb.now = clock.now
	return cb, clock, &transitions
}

func fail(context.Context) error    { return errStore }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	// Arrange
	cb, _, transitions := newTestBreaker(3, time.Second)
	ctx := context.Background()

	// Act
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errStore)
	}
	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})

	// Assert
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, []State{StateOpen}, *transitions)
	assert.Equal(t, time.Second, cb.RetryAfter())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _, _ := newTestBreaker(2, time.Second)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, fail))
	require.NoError(t, cb.Execute(ctx, succeed))
	require.Error(t, cb.Execute(ctx, fail))

	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.RetryAfter())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name      string
		probe     func(context.Context) error
		wantState State
		wantTrans []State
	}{
		{
			name:      "successful probe closes",
			probe:     succeed,
			wantState: StateClosed,
			wantTrans: []State{StateOpen, StateHalfOpen, StateClosed},
		},
		{
			name:      "failed probe reopens",
			probe:     fail,
			wantState: StateOpen,
			wantTrans: []State{StateOpen, StateHalfOpen, StateOpen},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cb, clock, transitions := newTestBreaker(1, time.Second)
			ctx := context.Background()
			require.Error(t, cb.Execute(ctx, fail))
			clock.advance(time.Second)

			// Act
			_ = cb.Execute(ctx, tt.probe)

			// Assert
			assert.Equal(t, tt.wantState, cb.State())
			assert.Equal(t, tt.wantTrans, *transitions)
		})
	}
}

func TestCircuitBreaker_SingleProbeInFlight(t *testing.T) {
	cb, clock, _ := newTestBreaker(1, time.Second)
	ctx := context.Background()
	require.Error(t, cb.Execute(ctx, fail))
	clock.advance(2 * time.Second)

	var inner error
	err := cb.Execute(ctx, func(ctx context.Context) error {
		inner = cb.Execute(ctx, succeed)
		return nil
	})

	assert.NoError(t, err)
	assert.ErrorIs(t, inner, ErrOpen)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb, _, _ := newTestBreaker(1, time.Second)

	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
