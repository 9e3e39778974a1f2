package scanner

import (
	"sync"
	"time"
)

// alertDedup suppresses repeat candidate alerts. The same cycle tends to stay
// profitable for several consecutive blocks, and reporting it on every head
// drowns the operator channels. Keyed by the candidate's rendered path, so a
// cycle re-routed through a different venue still alerts.
type alertDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time // path -> last alerted
	ttl  time.Duration
}

func newAlertDedup(ttl time.Duration) *alertDedup {
	return &alertDedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// shouldAlert records the path and returns true when it has not been alerted
// within the TTL. Expired entries are reaped opportunistically so the map
// stays bounded by the set of recently profitable paths.
func (d *alertDedup) shouldAlert(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[path]; ok && now.Sub(last) < d.ttl {
		return false
	}
	for p, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, p)
		}
	}
	d.seen[path] = now
	return true
}
