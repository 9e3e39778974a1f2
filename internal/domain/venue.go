package domain

import "time"

// Venue describes one decentralized trading venue (a DEX or other liquidity
// source). Weight biases path selection toward trusted venues when two cycles
// tie on profit; TVLUSD is the liquidity-depth proxy the risk validator
// checks against the configured floor.
type Venue struct {
	ID          string
	Name        string
	Weight      float64
	TVLUSD      float64
	ActivatedAt time.Time
	Blacklisted bool
}

// Eligible reports whether the venue has been active for at least delay at
// the given instant. New venues are ignored until the delay has elapsed.
func (v Venue) Eligible(now time.Time, delay time.Duration) bool {
	if v.Blacklisted {
		return false
	}
	if v.ActivatedAt.IsZero() {
		return false
	}
	return now.Sub(v.ActivatedAt) >= delay
}
