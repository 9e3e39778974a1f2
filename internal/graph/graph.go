// Package graph maintains the live market graph: one directed, venue-specific
// edge per (venue, tokenIn, tokenOut), mutated only by the ingestion worker
// and read by the scan loop through immutable point-in-time snapshots. The
// snapshot is the sole synchronization boundary between ingestion and search.
package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cycleforge/flasharb/internal/domain"
)

// VenueDirectory resolves venue records for eligibility filtering. The venue
// registry satisfies it.
type VenueDirectory interface {
	Venue(id string) (domain.Venue, error)
}

// Options configure the graph's filtering behavior.
type Options struct {
	FreshnessWindow time.Duration
	NewVenueDelay   time.Duration
	// BlacklistedTokens are never inserted: updates touching them are
	// rejected at the edge level.
	BlacklistedTokens []common.Address
}

// Graph is the live edge map. Apply upserts one edge atomically; Snapshot
// returns an immutable view filtered for freshness, venue activation delay,
// and blacklists.
type Graph struct {
	venues VenueDirectory
	opts   Options

	mu          sync.RWMutex
	edges       map[domain.EdgeKey]domain.Edge
	blacklisted map[common.Address]bool
	block       uint64
}

// New creates an empty Graph.
func New(venues VenueDirectory, opts Options) *Graph {
	bl := make(map[common.Address]bool, len(opts.BlacklistedTokens))
	for _, a := range opts.BlacklistedTokens {
		bl[a] = true
	}
	return &Graph{
		venues:      venues,
		opts:        opts,
		edges:       make(map[domain.EdgeKey]domain.Edge),
		blacklisted: bl,
	}
}

// Apply upserts one edge. Updates replace in place: the graph never holds two
// edges with the same key, and a reader holding a snapshot never observes a
// partially-applied update. Edges touching a blacklisted token or an unknown
// or blacklisted venue are rejected and never inserted.
func (g *Graph) Apply(e domain.Edge) error {
	if g.blacklisted[e.Key.TokenIn] || g.blacklisted[e.Key.TokenOut] {
		return fmt.Errorf("graph: edge %s: token blacklisted", e.Key)
	}
	v, err := g.venues.Venue(e.Key.VenueID)
	if err != nil {
		return fmt.Errorf("graph: edge %s: %w", e.Key, err)
	}
	if v.Blacklisted {
		return fmt.Errorf("graph: edge %s: venue blacklisted", e.Key)
	}
	if e.Curve == nil {
		return fmt.Errorf("graph: edge %s: nil curve", e.Key)
	}

	g.mu.Lock()
	g.edges[e.Key] = e
	g.mu.Unlock()
	return nil
}

// ApplyAll upserts a batch of edges, typically the two directions produced by
// one pair update. The first rejection aborts the batch.
func (g *Graph) ApplyAll(edges []domain.Edge) error {
	for _, e := range edges {
		if err := g.Apply(e); err != nil {
			return err
		}
	}
	return nil
}

// SetBlock records the latest observed block height; snapshots carry it so
// candidates can be tied to the block they were computed against.
func (g *Graph) SetBlock(n uint64) {
	g.mu.Lock()
	if n > g.block {
		g.block = n
	}
	g.mu.Unlock()
}

// Block returns the latest observed block height.
func (g *Graph) Block() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.block
}

// Len returns the number of live edges, including stale ones.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// NewestUpdate returns the timestamp of the most recently applied edge, or
// the zero time if the graph is empty.
func (g *Graph) NewestUpdate() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var newest time.Time
	for _, e := range g.edges {
		if e.UpdatedAt.After(newest) {
			newest = e.UpdatedAt
		}
	}
	return newest
}

// Snapshot returns an immutable point-in-time view for path search. Edges
// older than the freshness window and edges from venues still inside their
// activation delay are excluded. The returned snapshot is safe for concurrent
// use and never changes after this call returns.
func (g *Graph) Snapshot(now time.Time) *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	adj := make(map[common.Address][]domain.Edge)
	count := 0
	for _, e := range g.edges {
		if !e.Fresh(now, g.opts.FreshnessWindow) {
			continue
		}
		v, err := g.venues.Venue(e.Key.VenueID)
		if err != nil || !v.Eligible(now, g.opts.NewVenueDelay) {
			continue
		}
		adj[e.Key.TokenIn] = append(adj[e.Key.TokenIn], e)
		count++
	}

	return &Snapshot{
		At:        now,
		Block:     g.block,
		adjacency: adj,
		count:     count,
	}
}
