package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRetryer_SucceedsAfterFailures(t *testing.T) {
	var retries []int
	p := FixedPolicy(3, time.Millisecond)
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
		assert.Equal(t, time.Millisecond, delay)
	}

	calls := 0
	err := New(p, nil).Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return errors.New("cold start")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryer_Exhausted(t *testing.T) {
	boom := errors.New("boom")
	err := New(FixedPolicy(2, time.Millisecond), nil).Do(context.Background(), func(context.Context, int) error {
		return boom
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
}

func TestRetryer_ShouldRetryStopsEarly(t *testing.T) {
	fatal := errors.New("fatal")
	p := FixedPolicy(5, time.Millisecond)
	p.ShouldRetry = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	err := New(p, nil).Do(context.Background(), func(context.Context, int) error {
		calls++
		return fatal
	})
	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(FixedPolicy(3, time.Hour), nil)

	err := r.Do(ctx, func(context.Context, int) error {
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_Generic(t *testing.T) {
	v, err := Do(context.Background(), New(FixedPolicy(2, time.Millisecond), nil),
		func(_ context.Context, attempt int) (string, error) {
			if attempt == 1 {
				return "", errors.New("first")
			}
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestBackoff_Exponential(t *testing.T) {
	r := New(Policy{MaxAttempts: 5, Delay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}, nil)
	assert.Equal(t, 100*time.Millisecond, r.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, r.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, r.Backoff(3))
}

func TestBackoff_JitterBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Duration(rapid.Int64Range(1, int64(time.Second)).Draw(t, "base"))
		n := rapid.IntRange(1, 6).Draw(t, "n")
		r := New(ExponentialPolicy(10, base, 0), nil)

		want := float64(base) * float64(int(1)<<(n-1))
		got := float64(r.Backoff(n))
		if got < want*0.75-1 || got > want*1.25+1 {
			t.Fatalf("backoff %v outside ±25%% of %v", got, want)
		}
	})
}
