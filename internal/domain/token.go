// Package domain defines the core types shared by every layer of the
// arbitrage engine: tokens, venues, graph edges, cycle candidates, execution
// attempts, and the store/cache interfaces implemented by the infrastructure
// packages.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token identifies an ERC-20 token on the target chain. Tokens are created by
// the discovery collaborator and are read-only to the engine.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// TokenMeta carries the discovery metadata the risk validator checks before a
// token may participate in a trade. It is refreshed on an independent cadence
// from the discovery source.
type TokenMeta struct {
	Address      common.Address
	Symbol       string
	Decimals     uint8
	DiscoveredAt time.Time
	AuditScore   int  // 0-100, higher is safer
	Whitelisted  bool // bypasses age and audit checks
	Blacklisted  bool
	UpdatedAt    time.Time
}

// Age returns how long the token has been known at the given instant.
func (m TokenMeta) Age(now time.Time) time.Duration {
	if m.DiscoveredAt.IsZero() {
		return 0
	}
	return now.Sub(m.DiscoveredAt)
}
