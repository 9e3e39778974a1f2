package scanner

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats counts scan-loop outcomes for status reporting. All counters are
// atomic; Summary may be called from the notifier goroutine at any time.
type Stats struct {
	started time.Time

	Scans      atomic.Uint64
	Superseded atomic.Uint64
	Candidates atomic.Uint64
	Accepted   atomic.Uint64
	Rejected   atomic.Uint64
	Dispatched atomic.Uint64
}

// NewStats starts the uptime clock.
func NewStats() *Stats {
	return &Stats{started: time.Now().UTC()}
}

// Summary renders a one-line status digest.
func (s *Stats) Summary() string {
	return fmt.Sprintf(
		"uptime=%s scans=%d superseded=%d candidates=%d accepted=%d rejected=%d dispatched=%d",
		time.Since(s.started).Truncate(time.Second),
		s.Scans.Load(),
		s.Superseded.Load(),
		s.Candidates.Load(),
		s.Accepted.Load(),
		s.Rejected.Load(),
		s.Dispatched.Load(),
	)
}
