package graph

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cycleforge/flasharb/internal/domain"
)

// Snapshot is an immutable point-in-time view of the market graph. All
// accessors are safe for concurrent use; the underlying adjacency is built
// once and never mutated afterward.
type Snapshot struct {
	At    time.Time
	Block uint64

	adjacency map[common.Address][]domain.Edge
	count     int
}

// EdgesFrom returns the eligible outgoing edges for a token. Callers must not
// modify the returned slice.
func (s *Snapshot) EdgesFrom(token common.Address) []domain.Edge {
	return s.adjacency[token]
}

// Lookup returns the edge for an exact key, if present in the snapshot.
func (s *Snapshot) Lookup(key domain.EdgeKey) (domain.Edge, bool) {
	for _, e := range s.adjacency[key.TokenIn] {
		if e.Key == key {
			return e, true
		}
	}
	return domain.Edge{}, false
}

// Len returns the number of edges in the snapshot.
func (s *Snapshot) Len() int { return s.count }

// Age returns how old the snapshot is at the given instant.
func (s *Snapshot) Age(now time.Time) time.Duration { return now.Sub(s.At) }
