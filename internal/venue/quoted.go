package venue

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cycleforge/flasharb/internal/domain"
)

// QuotedAdapter normalizes venues that post flat exchange rates (RFQ-style
// sources, aggregator quotes) instead of exposing reserves. Liquidity is
// taken from the update when present and treated as the fillable depth.
type QuotedAdapter struct {
	id     string
	feeBps int64

	mu    sync.RWMutex
	pairs map[pairKey]quotedState
}

type quotedState struct {
	curve     QuotedRateCurve
	liquidity *big.Int
}

// NewQuotedAdapter creates an adapter for a flat-rate venue.
func NewQuotedAdapter(id string, feeBps int64) *QuotedAdapter {
	return &QuotedAdapter{
		id:     id,
		feeBps: feeBps,
		pairs:  make(map[pairKey]quotedState),
	}
}

// ID returns the venue identity.
func (a *QuotedAdapter) ID() string { return a.id }

// Update records the posted rate token0→token1 and its reciprocal, returning
// both directed edges.
func (a *QuotedAdapter) Update(u PairUpdate) ([]domain.Edge, error) {
	if u.RateNum == nil || u.RateDen == nil || u.RateNum.Sign() <= 0 || u.RateDen.Sign() <= 0 {
		return nil, fmt.Errorf("venue %s: update %s/%s: rate missing or invalid",
			a.id, u.Token0.Hex(), u.Token1.Hex())
	}

	liq := u.Reserve0
	if liq == nil {
		liq = new(big.Int)
	}
	revLiq := u.Reserve1
	if revLiq == nil {
		revLiq = new(big.Int)
	}

	fwd := QuotedRateCurve{
		RateNum: new(big.Int).Set(u.RateNum),
		RateDen: new(big.Int).Set(u.RateDen),
		FeeBps:  a.feeBps,
	}
	rev := QuotedRateCurve{
		RateNum: new(big.Int).Set(u.RateDen),
		RateDen: new(big.Int).Set(u.RateNum),
		FeeBps:  a.feeBps,
	}

	a.mu.Lock()
	a.pairs[pairKey{u.Token0, u.Token1}] = quotedState{curve: fwd, liquidity: new(big.Int).Set(liq)}
	a.pairs[pairKey{u.Token1, u.Token0}] = quotedState{curve: rev, liquidity: new(big.Int).Set(revLiq)}
	a.mu.Unlock()

	return []domain.Edge{
		{
			Key:          domain.EdgeKey{VenueID: a.id, TokenIn: u.Token0, TokenOut: u.Token1},
			Curve:        fwd,
			FeeBps:       a.feeBps,
			LiquidityWei: new(big.Int).Set(liq),
			UpdatedAt:    u.Timestamp,
		},
		{
			Key:          domain.EdgeKey{VenueID: a.id, TokenIn: u.Token1, TokenOut: u.Token0},
			Curve:        rev,
			FeeBps:       a.feeBps,
			LiquidityWei: new(big.Int).Set(revLiq),
			UpdatedAt:    u.Timestamp,
		},
	}, nil
}

// Quote prices amountIn through the latest posted rate for the pair.
func (a *QuotedAdapter) Quote(tokenIn, tokenOut common.Address, amountIn *big.Int) (Quote, error) {
	a.mu.RLock()
	st, ok := a.pairs[pairKey{tokenIn, tokenOut}]
	a.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("venue %s: no state for %s->%s: %w",
			a.id, tokenIn.Hex(), tokenOut.Hex(), domain.ErrNotFound)
	}
	return Quote{
		AmountOut: st.curve.AmountOut(amountIn),
		FeeBps:    a.feeBps,
		Liquidity: new(big.Int).Set(st.liquidity),
	}, nil
}

var _ Adapter = (*QuotedAdapter)(nil)
