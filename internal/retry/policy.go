package retry

import (
	"context"
	"time"
)

// Policy decides whether a failed attempt should be retried and how long to
// back off first. It is side-effect free; callers own the sleep.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 5,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
	}
}

// Decide reports whether attempt (zero-based count of attempts already made)
// should be followed by another try, and the delay before it. A task is
// attempted at most MaxRetries+1 times in total.
func (p Policy) Decide(attempt int, kind Kind) (bool, time.Duration) {
	switch kind {
	case KindTransient, KindProbe:
	default:
		return false, 0
	}
	if attempt >= p.MaxRetries {
		return false, 0
	}
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return true, delay
}

// Wait blocks for the given delay or until the context is cancelled.
func Wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
