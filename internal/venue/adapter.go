// Package venue normalizes heterogeneous trading venues behind a common quote
// capability. New venues are added by implementing Adapter and registering
// with an activation timestamp, never by modifying existing adapters.
package venue

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cycleforge/flasharb/internal/domain"
)

// Quote is the normalized result of pricing an amount through one venue.
type Quote struct {
	AmountOut *big.Int
	FeeBps    int64
	Liquidity *big.Int // pool depth on the input side, smallest units
}

// PairUpdate is a raw reserve/rate observation from a venue feed. For
// constant-product venues Reserve0/Reserve1 are set; for quoted venues
// RateNum/RateDen carry the posted exchange rate token0→token1.
type PairUpdate struct {
	VenueID   string
	Token0    common.Address
	Token1    common.Address
	Reserve0  *big.Int
	Reserve1  *big.Int
	RateNum   *big.Int
	RateDen   *big.Int
	Block     uint64
	Timestamp time.Time
}

// Adapter is the capability every venue implements. Update ingests a raw
// feed observation and returns the directed edges it implies (one per
// direction); Quote prices an amount through the venue's latest known state.
type Adapter interface {
	ID() string
	Update(u PairUpdate) ([]domain.Edge, error)
	Quote(tokenIn, tokenOut common.Address, amountIn *big.Int) (Quote, error)
}

// pairKey identifies a directed pair within one adapter's state.
type pairKey struct {
	in  common.Address
	out common.Address
}
