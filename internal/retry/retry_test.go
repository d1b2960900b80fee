package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transientErr struct{ after time.Duration }

func (e transientErr) Error() string             { return "transient" }
func (e transientErr) RetryAfter() time.Duration { return e.after }

var errPermanent = errors.New("permanent")

func isTransient(err error) bool {
	var te transientErr
	return errors.As(err, &te)
}

func fastPolicy(n int) Policy {
	return Policy{MaxAttempts: n, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestDo_SucceedsAfterKTransientFailures(t *testing.T) {
	for k := 0; k < 4; k++ {
		calls := 0
		attempts, err := Do(context.Background(), fastPolicy(4), isTransient, func(context.Context) error {
			calls++
			if calls <= k {
				return transientErr{}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, k+1, calls)
		assert.Equal(t, k+1, attempts)
	}
}

func TestDo_Exhaustion(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastPolicy(3), isTransient, func(context.Context) error {
		calls++
		return transientErr{}
	})
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 3, ex.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
	assert.True(t, isTransient(err), "exhausted error unwraps to the last failure")
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastPolicy(5), isTransient, func(context.Context) error {
		calls++
		return errPermanent
	})
	require.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = Do(ctx, p, isTransient, func(context.Context) error {
			calls++
			return transientErr{}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_AlreadyCancelledMakesNoCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := Do(ctx, fastPolicy(3), isTransient, func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
	assert.Zero(t, attempts)
}

func TestDo_InvalidPolicy(t *testing.T) {
	_, err := Do(context.Background(), Policy{}, isTransient, func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(30))
}

func TestDo_HonoursRetryAfterHintCappedByMaxDelay(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 30 * time.Millisecond}
	start := time.Now()
	calls := 0
	_, err := Do(context.Background(), p, isTransient, func(context.Context) error {
		calls++
		if calls == 1 {
			return transientErr{after: time.Hour}
		}
		return nil
	})
	require.NoError(t, err)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

type selfClassified bool

func (s selfClassified) Error() string     { return "self-classified" }
func (s selfClassified) IsTransient() bool { return bool(s) }

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errPermanent))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.Join(context.DeadlineExceeded, selfClassified(true))))
	assert.True(t, IsTransient(selfClassified(true)))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", selfClassified(true))))
	assert.False(t, IsTransient(selfClassified(false)))
}
