package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceCurve models a venue's monotonic price-impact function for one
// directed pair. Implementations must be immutable: once an Edge is built its
// curve never changes, so graph snapshots can be shared across goroutines
// without copying.
type PriceCurve interface {
	// AmountOut returns the output amount for the given input amount, fee
	// included. Both amounts are fixed-point integers in the smallest token
	// unit. The result is never negative.
	AmountOut(amountIn *big.Int) *big.Int
}

// EdgeKey uniquely identifies a directed edge in the market graph. The graph
// never holds two edges with the same key; updates replace in place.
type EdgeKey struct {
	VenueID  string
	TokenIn  common.Address
	TokenOut common.Address
}

// String renders the key for logs.
func (k EdgeKey) String() string {
	return fmt.Sprintf("%s:%s->%s", k.VenueID, k.TokenIn.Hex(), k.TokenOut.Hex())
}

// Edge is one directed, venue-specific exchange relation between two tokens.
// Edges are mutated only by connection-manager-sourced updates; readers work
// from immutable snapshots.
type Edge struct {
	Key          EdgeKey
	Curve        PriceCurve
	FeeBps       int64    // venue swap fee in basis points
	LiquidityWei *big.Int // pool depth in tokenIn smallest units
	UpdatedAt    time.Time
}

// Fresh reports whether the edge was updated within the freshness window at
// the given instant.
func (e Edge) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(e.UpdatedAt) <= window
}
