// Package stage implements the generate, critique, and iterate stages
// along with the selection and concurrency primitives they share.
package stage

import (
	"context"
	"sync"
)

// Limiter bounds the number of simultaneously in-flight units for one
// stage invocation. All units of an invocation share one Limiter.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter creates a limiter admitting at most limit units at once.
func NewLimiter(limit int) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{slots: make(chan struct{}, limit)}
}

// Run invokes fn for indices 0..n-1 with bounded concurrency and
// settle-all semantics: every started unit runs to completion and a
// unit's failure never cancels its siblings. Units that have not yet
// acquired a slot when ctx is cancelled are skipped. Run returns the
// number of units actually started.
func (l *Limiter) Run(ctx context.Context, n int, fn func(i int)) int {
	var wg sync.WaitGroup
	started := 0

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			return started
		case l.slots <- struct{}{}:
		}

		started++
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-l.slots }()
			fn(i)
		}(i)
	}

	wg.Wait()
	return started
}
