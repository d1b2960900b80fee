// Package retry runs an operation under a bounded attempt count with
// capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds the attempts made for one operation.
type Policy struct {
	MaxAttempts int           // total calls, including the first
	BaseDelay   time.Duration // wait before the second attempt
	MaxDelay    time.Duration // cap on any single wait
}

// DefaultPolicy returns the policy used for enrichment calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1")
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("retry delays must be >= 0")
	}
	return nil
}

// Backoff returns the wait before attempt n+1, given n attempts so far.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ExhaustedError reports that every attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// retryAfterer is implemented by errors that carry a server backoff hint.
type retryAfterer interface {
	RetryAfter() time.Duration
}

// Do calls fn until it succeeds, returns an error classify reports as
// permanent, the attempt budget runs out, or ctx is done. It returns the
// number of calls made. Exhaustion is reported as *ExhaustedError.
func Do(ctx context.Context, p Policy, classify func(error) bool, fn func(context.Context) error) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		attempts++
		err := fn(ctx)
		if err == nil {
			return attempts, nil
		}
		if ctx.Err() != nil {
			return attempts, errors.Join(ctx.Err(), err)
		}
		if classify == nil || !classify(err) {
			return attempts, err
		}
		if attempts >= p.MaxAttempts {
			return attempts, &ExhaustedError{Attempts: attempts, Last: err}
		}

		wait := p.Backoff(attempts)
		var ra retryAfterer
		if errors.As(err, &ra) && ra.RetryAfter() > wait {
			wait = ra.RetryAfter()
			if p.MaxDelay > 0 && wait > p.MaxDelay {
				wait = p.MaxDelay
			}
		}
		if err := sleep(ctx, wait); err != nil {
			return attempts, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsTransient is the default classifier. Errors implementing
// IsTransient() bool decide for themselves; context errors and everything
// else are permanent.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var t interface{ IsTransient() bool }
	if errors.As(err, &t) {
		return t.IsTransient()
	}
	return false
}
