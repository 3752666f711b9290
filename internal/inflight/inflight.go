// Package inflight collapses concurrent loads of the same sound name into one.
package inflight

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Group runs at most one load per key at a time. Keys are the literal names
// callers pass; two aliases of one bank are separate keys.
type Group[T any] struct {
	sf singleflight.Group

	mu      sync.Mutex
	running map[string]struct{}
}

// LoadOnce runs fn for name unless a load for name is already running, in
// which case it waits for that load's outcome. The entry is dropped when
// fn returns, successful or not, so the next call starts afresh.
//
// The load itself is detached from ctx: a caller giving up stops waiting
// but does not cancel the work other callers share.
func (g *Group[T]) LoadOnce(ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	detached := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(name, func() (any, error) {
		g.track(name, true)
		defer g.track(name, false)
		return fn(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (g *Group[T]) track(name string, start bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if start {
		g.running[name] = struct{}{}
	} else {
		delete(g.running, name)
	}
}

// InFlight reports whether a load for name is currently running
func (g *Group[T]) InFlight(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[name]
	return ok
}

// Pending lists the names with a running load, sorted
func (g *Group[T]) Pending() []string {
	g.mu.Lock()
	names := make([]string, 0, len(g.running))
	for name := range g.running {
		names = append(names, name)
	}
	g.mu.Unlock()
	sort.Strings(names)
	return names
}
