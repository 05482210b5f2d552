// Package retry implements the exponential-backoff-plus-jitter policy named
// in the error handling design for TransientStorage and ProviderTimeout,
// generalized from the teacher's processRefreshWithRetry pattern in
// snapshot_worker.go.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default is a policy for transient storage/provider calls. No package in
// this repository calls Do; the workers log a failed job instead of retrying.
var Default = Policy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}

// Do runs fn up to p.MaxAttempts times, backing off exponentially with jitter
// between attempts. It stops early if shouldRetry returns false for the
// latest error, or if ctx is done.
func Do(ctx context.Context, p Policy, shouldRetry func(error) bool, fn func(ctx context.Context) error) error {
	var err error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		jittered := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
