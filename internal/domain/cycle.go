package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Hop is one executed step of a cycle: the edge plus the exact fixed-point
// amounts that flow through it.
type Hop struct {
	Edge      Edge
	AmountIn  *big.Int
	AmountOut *big.Int
}

// CycleCandidate is an ordered sequence of hops returning to the base token,
// with the economics computed at detection time. Candidates live for one scan
// pass: they are consumed by the risk validator and execution coordinator and
// never persisted (only terminal execution attempts are journaled).
type CycleCandidate struct {
	ID        string
	Base      common.Address
	Hops      []Hop
	AmountIn  *big.Int // borrowed input in base token smallest units
	AmountOut *big.Int // final output before gas
	GasCost   *big.Int // amortized gas estimate in base token smallest units
	NetProfit *big.Int // AmountOut - AmountIn - GasCost
	Block     uint64
	FoundAt   time.Time
}

// MinWeight returns the lowest venue weight among the cycle's hops, given a
// lookup of venue weights. Used as the tie-breaker after net profit.
func (c CycleCandidate) MinWeight(weightOf func(venueID string) float64) float64 {
	if len(c.Hops) == 0 {
		return 0
	}
	min := weightOf(c.Hops[0].Edge.Key.VenueID)
	for _, h := range c.Hops[1:] {
		if w := weightOf(h.Edge.Key.VenueID); w < min {
			min = w
		}
	}
	return min
}

// Path renders the hop sequence for logs and notifications, e.g.
// "uniswap_v2:WETH->DAI => sushiswap:DAI->WETH".
func (c CycleCandidate) Path() string {
	var b strings.Builder
	for i, h := range c.Hops {
		if i > 0 {
			b.WriteString(" => ")
		}
		b.WriteString(h.Edge.Key.String())
	}
	return b.String()
}

// Venues returns the distinct venue IDs touched by the cycle in hop order.
func (c CycleCandidate) Venues() []string {
	seen := make(map[string]bool, len(c.Hops))
	out := make([]string, 0, len(c.Hops))
	for _, h := range c.Hops {
		id := h.Edge.Key.VenueID
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Tokens returns every token address the cycle touches, base first.
func (c CycleCandidate) Tokens() []common.Address {
	out := make([]common.Address, 0, len(c.Hops)+1)
	out = append(out, c.Base)
	for _, h := range c.Hops {
		out = append(out, h.Edge.Key.TokenOut)
	}
	return out
}
