package download

import "context"

// Limiter bounds in-flight network transfers. Whole-file downloads and chunk
// sub-transfers draw from the same budget, so a task fanning out into chunks
// never pushes the process past the configured connection count.
type Limiter chan struct{}

func NewLimiter(n int) Limiter {
	if n < 1 {
		n = 1
	}
	return make(Limiter, n)
}

func (l Limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l Limiter) Release() {
	if l != nil {
		<-l
	}
}
