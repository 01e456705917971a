package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetrier(cfg Config) (*Retrier, *[]time.Duration) {
	r := New(cfg, logger.NewNopLogger())
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return r, &slept
}

func TestExecute(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		failures  int
		retryable func(error) bool
		permanent bool
		wantCalls int
		wantErr   error
	}{
		{name: "first attempt succeeds", failures: 0, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, wantCalls: 3},
		{name: "exhausted", failures: 10, wantCalls: 4, wantErr: ErrExhausted},
		{name: "not retryable", failures: 10, retryable: func(error) bool { return false }, wantCalls: 1, wantErr: boom},
		{name: "permanent", failures: 10, permanent: true, wantCalls: 1, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2, RetryableFunc: tt.retryable}
			r, _ := newTestRetrier(cfg)

			calls := 0
			err := r.Execute(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					if tt.permanent {
						return Permanent(boom)
					}
					return boom
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestExecute_ContextCancelled(t *testing.T) {
	r, _ := newTestRetrier(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Execute(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoff_ExponentialAndCapped(t *testing.T) {
	r, _ := newTestRetrier(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2})

	assert.Equal(t, 100*time.Millisecond, r.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, r.Backoff(1))
	assert.Equal(t, 800*time.Millisecond, r.Backoff(3))
	assert.Equal(t, time.Second, r.Backoff(4))
	assert.Equal(t, time.Second, r.Backoff(30))
}

func TestBackoff_JitterStaysWithinHalfAndFull(t *testing.T) {
	r, _ := newTestRetrier(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true})

	for attempt := 0; attempt < 6; attempt++ {
		full := 100 * time.Millisecond << attempt
		if full > time.Second {
			full = time.Second
		}
		for i := 0; i < 50; i++ {
			d := r.Backoff(attempt)
			require.GreaterOrEqual(t, d, full/2)
			require.LessOrEqual(t, d, full)
		}
	}
}

func TestExecute_SleepsBetweenAttempts(t *testing.T) {
	r, slept := newTestRetrier(Config{MaxRetries: 2, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 3})

	_ = r.Execute(context.Background(), func(context.Context) error { return errors.New("fail") })

	assert.Equal(t, []time.Duration{10 * time.Millisecond, 30 * time.Millisecond}, *slept)
}
