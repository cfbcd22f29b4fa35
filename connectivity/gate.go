package connectivity

import (
	"context"
	"sync"
	"time"
)

// Probe is the narrow capability interface a host implements to report
// whether the network is reachable. Implementations must be cheap; Run
// polls them on an interval.
type Probe interface {
	Online() bool
}

// Gate holds the current connectivity state and fans transitions out to
// subscribers. All methods are safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	online  bool
	waiters []chan struct{}
	subs    map[int]func(bool)
	nextSub int
}

// NewGate creates a gate with the given initial state.
func NewGate(online bool) *Gate {
	return &Gate{
		online: online,
		subs:   make(map[int]func(bool)),
	}
}

// Online reports the current state.
func (g *Gate) Online() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online
}

// SetOnline records a state change. Subscribers are notified only on actual
// transitions; setting the same state twice is a no-op. Callbacks run
// synchronously under no lock and must not block.
func (g *Gate) SetOnline(online bool) {
	g.mu.Lock()
	if g.online == online {
		g.mu.Unlock()
		return
	}
	g.online = online

	var waiters []chan struct{}
	if online {
		waiters = g.waiters
		g.waiters = nil
	}

	subs := make([]func(bool), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	for _, fn := range subs {
		fn(online)
	}
}

// AwaitOnline blocks until the gate is online or ctx is done. Returns nil
// immediately when already online.
func (g *Gate) AwaitOnline(ctx context.Context) error {
	g.mu.Lock()
	if g.online {
		g.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn to run on every transition and returns an
// unsubscribe handle. Unsubscribing twice is harmless.
func (g *Gate) Subscribe(fn func(online bool)) func() {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

// Run polls p on the given interval and feeds transitions into the gate
// until ctx is done. Intended to be launched as a goroutine by hosts that
// only have a boolean probe rather than an event source.
func (g *Gate) Run(ctx context.Context, p Probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.SetOnline(p.Online())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.SetOnline(p.Online())
		}
	}
}
