package server

import (
	"context"
	"sync"
)

// Coordinator enforces "last request wins" for builds: starting a new
// build cancels whichever build is still in flight. Lock passes and
// score requests are cheap and run outside it.
type Coordinator struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	current uint64
}

// Begin registers a new build, cancelling the previous one. The
// returned finish func must be called when the build completes.
func (c *Coordinator) Begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	prev := c.cancel
	c.current++
	gen := c.current
	c.cancel = cancel
	c.mu.Unlock()

	if prev != nil {
		prev()
	}

	return ctx, func() {
		c.mu.Lock()
		if c.current == gen {
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel()
	}
}

// Replaced reports whether a build that saw ctx cancelled lost to a
// newer request rather than to its own client going away.
func Replaced(ctx, parent context.Context) bool {
	return ctx.Err() != nil && parent.Err() == nil
}
