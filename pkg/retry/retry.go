// Package retry implements exponential backoff with jitter for transient
// provider failures.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Policy defines retry behavior with exponential backoff.
// Delay for attempt n is InitialDelay * BackoffMultiplier^n, capped at
// MaxDelay, with +/- JitterFactor applied.
type Policy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64 // 0.0-1.0; 0.1 means +/-10%
}

// DefaultPolicy matches the configured defaults for LLM provider calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.1,
	}
}

// RetryableError lets errors declare their own retryability, so this
// package never has to import the packages that produce them.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable reports whether an error is transient and worth retrying.
// Errors implementing RetryableError decide for themselves; anything else
// is pattern-matched against known transient failure strings.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"timed out",
		"temporary failure",
		"i/o timeout",
		"rate limit",
		"too many requests",
		"service unavailable",
		"429", "500", "502", "503", "504",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// jittered spreads a delay by +/- JitterFactor to avoid thundering herds.
func (p Policy) jittered(delay time.Duration) time.Duration {
	if p.JitterFactor <= 0 {
		return delay
	}
	spread := float64(delay) * p.JitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + spread)
}

// next advances the backoff delay, capped at MaxDelay.
func (p Policy) next(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * p.BackoffMultiplier)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn up to MaxRetries+1 times, backing off between attempts.
// Non-retryable errors return immediately. Context cancellation is
// honored during waits.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	var lastErr error
	delay := p.InitialDelay

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == p.MaxRetries {
			break
		}
		select {
		case <-time.After(p.jittered(delay)):
			delay = p.next(delay)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, p Policy, fn func(attempt int) (T, error)) (T, error) {
	var result T
	var lastErr error
	delay := p.InitialDelay

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		r, err := fn(attempt)
		if err == nil {
			return r, nil
		}
		result = r
		lastErr = err

		if !IsRetryable(err) {
			return result, err
		}
		if attempt == p.MaxRetries {
			break
		}
		select {
		case <-time.After(p.jittered(delay)):
			delay = p.next(delay)
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}
	return result, lastErr
}
