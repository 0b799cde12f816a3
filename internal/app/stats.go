package app

import (
	"context"
	"sync"

	"invbot/internal/eventbus"
)

// DispatchCounters aggregates reminder lifecycle events for the /health
// endpoint.
type DispatchCounters struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func NewDispatchCounters() *DispatchCounters {
	return &DispatchCounters{counts: map[string]uint64{}}
}

// Run consumes bus events until ctx is canceled.
func (c *DispatchCounters) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.mu.Lock()
			c.counts[ev.Type]++
			c.mu.Unlock()
		}
	}
}

func (c *DispatchCounters) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
