package venue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cycleforge/flasharb/internal/config"
	"github.com/cycleforge/flasharb/internal/domain"
)

// Registry manages the set of registered venues and their adapters, keyed by
// venue identity. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	venues   map[string]domain.Venue
	adapters map[string]Adapter
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		venues:   make(map[string]domain.Venue),
		adapters: make(map[string]Adapter),
	}
}

// Register adds a venue and its adapter. It returns an error when the venue
// ID is already taken; existing registrations are never replaced.
func (r *Registry) Register(v domain.Venue, a Adapter) error {
	if v.ID != a.ID() {
		return fmt.Errorf("venue %q: adapter reports id %q", v.ID, a.ID())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.venues[v.ID]; ok {
		return fmt.Errorf("venue %q: already registered", v.ID)
	}
	r.venues[v.ID] = v
	r.adapters[v.ID] = a
	return nil
}

// Adapter retrieves the adapter for a venue ID.
func (r *Registry) Adapter(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("venue %q: not registered", id)
	}
	return a, nil
}

// Venue retrieves the venue record for an ID.
func (r *Registry) Venue(id string) (domain.Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[id]
	if !ok {
		return domain.Venue{}, fmt.Errorf("venue %q: not registered", id)
	}
	return v, nil
}

// Weight returns the venue's trust weight, or zero for unknown venues.
func (r *Registry) Weight(id string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.venues[id].Weight
}

// List returns all registered venue IDs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.venues))
	for id := range r.venues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FromConfig builds a Registry from the configured venue list. Venues without
// an explicit activation timestamp are treated as activated at process start,
// so the new-venue delay applies to them in full.
func FromConfig(venues []config.VenueConfig, now time.Time) (*Registry, error) {
	r := NewRegistry()
	for _, vc := range venues {
		activated := now
		if vc.ActivatedAt != "" {
			t, err := time.Parse(time.RFC3339, vc.ActivatedAt)
			if err != nil {
				return nil, fmt.Errorf("venue %q: parse activated_at: %w", vc.ID, err)
			}
			activated = t
		}

		var adapter Adapter
		switch vc.Kind {
		case "uniswap_v2":
			adapter = NewUniswapV2Adapter(vc.ID, vc.FeeBps)
		case "quoted":
			adapter = NewQuotedAdapter(vc.ID, vc.FeeBps)
		default:
			return nil, fmt.Errorf("venue %q: unknown kind %q", vc.ID, vc.Kind)
		}

		v := domain.Venue{
			ID:          vc.ID,
			Name:        vc.Name,
			Weight:      vc.Weight,
			TVLUSD:      vc.TVLUSD,
			Blacklisted: vc.Blacklisted,
			ActivatedAt: activated,
		}
		if err := r.Register(v, adapter); err != nil {
			return nil, err
		}
	}
	return r, nil
}
