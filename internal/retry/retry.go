// Package retry runs a call under an explicit policy of bounded attempts with exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds how a call is retried
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultPolicy is three attempts with 2s, 4s backoff
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 2 * time.Second,
	MaxBackoff:     30 * time.Second,
	Multiplier:     2,
}

// Backoff returns the delay before attempt n+1, where n counts completed attempts from 1
func (p Policy) Backoff(n int) time.Duration {
	if p.InitialBackoff <= 0 || n < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= mult
		if p.MaxBackoff > 0 && d >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return time.Duration(d)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Result is the outcome of Do
type Result[T any] struct {
	Value    T
	Attempts int
	Err      error
}

// Do calls fn until it succeeds, returns a permanent error, the policy is exhausted,
// or ctx is done. The last error is returned unwrapped from Permanent.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) Result[T] {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var res Result[T]
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		res.Value, res.Err = fn(ctx, attempt)
		if res.Err == nil {
			return res
		}
		var perm *permanentError
		if errors.As(res.Err, &perm) {
			res.Err = perm.err
			return res
		}
		if attempt == maxAttempts {
			break
		}

		wait := p.Backoff(attempt)
		if wait <= 0 {
			if ctx.Err() != nil {
				return res
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return res
		}
	}
	return res
}
