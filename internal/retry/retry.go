// Package retry provides the wait schedules used when page content or remote
// listings are not ready yet.
package retry

import (
	"context"
	"errors"
	"time"
)

// Schedule lists the wait applied before each attempt. Its length is the
// maximum number of attempts.
type Schedule []time.Duration

// Fixed builds a schedule of n attempts where the first one runs immediately
// and every following one waits d.
func Fixed(n int, d time.Duration) Schedule {
	if n <= 0 {
		return nil
	}
	s := make(Schedule, n)
	for i := 1; i < n; i++ {
		s[i] = d
	}
	return s
}

// Attempts returns how many times Do will call the function
func (s Schedule) Attempts() int { return len(s) }

// ErrTimeout is returned by Poll when the probe never reported success
var ErrTimeout = errors.New("retry: condition not met before attempts ran out")

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so that Do stops retrying and returns it unchanged
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn following the schedule until it succeeds, returns a permanent
// error or the attempts run out. The last error is returned in that case.
func Do(ctx context.Context, schedule Schedule, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt, wait := range schedule {
		if err := Sleep(ctx, wait); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrTimeout
	}
	return lastErr
}

// Poll calls probe every interval, at most maxAttempts times, until it reports
// found. The first probe runs immediately. Probe errors are treated as not
// found; ErrTimeout is returned when nothing was found.
func Poll[T any](ctx context.Context, interval time.Duration, maxAttempts int, probe func(ctx context.Context) (T, bool, error)) (T, error) {
	var result T
	err := Do(ctx, Fixed(maxAttempts, interval), func(ctx context.Context, _ int) error {
		v, ok, err := probe(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTimeout
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrTimeout
	}
	return result, nil
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
