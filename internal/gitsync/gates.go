package gitsync

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Gates bounds concurrent network git operations with two nested counting
// semaphores: a "net" gate for every network-touching git call and a
// stricter "clone" gate for from-scratch clones, which are markedly more
// bandwidth- and IO-intensive than fetches. Clone capacity never exceeds
// net capacity, and a clone holds both gates for its duration (net is
// always acquired first, so the two gates cannot deadlock against each
// other).
type Gates struct {
	net      *semaphore.Weighted
	clone    *semaphore.Weighted
	netCap   int64
	cloneCap int64
}

func NewGates(netCap, cloneCap int) (*Gates, error) {
	if netCap < 1 {
		return nil, fmt.Errorf("net gate capacity must be >= 1, got %d", netCap)
	}
	if cloneCap < 1 {
		return nil, fmt.Errorf("clone gate capacity must be >= 1, got %d", cloneCap)
	}
	if cloneCap > netCap {
		return nil, fmt.Errorf("clone gate capacity (%d) must not exceed net gate capacity (%d)", cloneCap, netCap)
	}
	return &Gates{
		net:      semaphore.NewWeighted(int64(netCap)),
		clone:    semaphore.NewWeighted(int64(cloneCap)),
		netCap:   int64(netCap),
		cloneCap: int64(cloneCap),
	}, nil
}

// AcquireNet admits one network git operation (fetch, probe).
func (g *Gates) AcquireNet(ctx context.Context) error {
	return g.net.Acquire(ctx, 1)
}

func (g *Gates) ReleaseNet() {
	g.net.Release(1)
}

// AcquireClone admits one from-scratch clone. The net gate is taken first so
// clones also count against the network bound.
func (g *Gates) AcquireClone(ctx context.Context) error {
	if err := g.net.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := g.clone.Acquire(ctx, 1); err != nil {
		g.net.Release(1)
		return err
	}
	return nil
}

func (g *Gates) ReleaseClone() {
	g.clone.Release(1)
	g.net.Release(1)
}

// NetCapacity and CloneCapacity expose the configured bounds for logging.
func (g *Gates) NetCapacity() int   { return int(g.netCap) }
func (g *Gates) CloneCapacity() int { return int(g.cloneCap) }
