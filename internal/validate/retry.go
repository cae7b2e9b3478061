package validate

import (
	"context"
	"time"
)

// RetryPolicy bounds the authoritative lookup: a fixed number of attempts
// with a fixed delay between them. It replaces retry-via-recursion with a
// loop the resolver drives explicitly.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Second}
}

// Wait blocks for the inter-attempt delay, or returns early with the
// context's error if it is cancelled first.
func (p RetryPolicy) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
