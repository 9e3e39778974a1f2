package venue

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cycleforge/flasharb/internal/domain"
)

// UniswapV2Adapter normalizes any constant-product AMM (Uniswap v2,
// Sushiswap, Pancakeswap forks) into the common quote capability. It keeps
// the latest observed reserves per directed pair.
type UniswapV2Adapter struct {
	id     string
	feeBps int64

	mu    sync.RWMutex
	pairs map[pairKey]ConstantProductCurve
}

// NewUniswapV2Adapter creates an adapter for a constant-product venue with
// the given swap fee (30 bps for canonical v2 forks).
func NewUniswapV2Adapter(id string, feeBps int64) *UniswapV2Adapter {
	return &UniswapV2Adapter{
		id:     id,
		feeBps: feeBps,
		pairs:  make(map[pairKey]ConstantProductCurve),
	}
}

// ID returns the venue identity.
func (a *UniswapV2Adapter) ID() string { return a.id }

// Update records the pool reserves from a feed observation and returns the
// two directed edges (token0→token1 and token1→token0) they imply. The
// returned edges carry independent curve copies so later updates never mutate
// an edge already handed to the graph.
func (a *UniswapV2Adapter) Update(u PairUpdate) ([]domain.Edge, error) {
	if u.Reserve0 == nil || u.Reserve1 == nil || u.Reserve0.Sign() <= 0 || u.Reserve1.Sign() <= 0 {
		return nil, fmt.Errorf("venue %s: update %s/%s: reserves missing or empty",
			a.id, u.Token0.Hex(), u.Token1.Hex())
	}

	fwd := ConstantProductCurve{
		ReserveIn:  new(big.Int).Set(u.Reserve0),
		ReserveOut: new(big.Int).Set(u.Reserve1),
		FeeBps:     a.feeBps,
	}
	rev := ConstantProductCurve{
		ReserveIn:  new(big.Int).Set(u.Reserve1),
		ReserveOut: new(big.Int).Set(u.Reserve0),
		FeeBps:     a.feeBps,
	}

	a.mu.Lock()
	a.pairs[pairKey{u.Token0, u.Token1}] = fwd
	a.pairs[pairKey{u.Token1, u.Token0}] = rev
	a.mu.Unlock()

	return []domain.Edge{
		{
			Key:          domain.EdgeKey{VenueID: a.id, TokenIn: u.Token0, TokenOut: u.Token1},
			Curve:        fwd,
			FeeBps:       a.feeBps,
			LiquidityWei: new(big.Int).Set(u.Reserve0),
			UpdatedAt:    u.Timestamp,
		},
		{
			Key:          domain.EdgeKey{VenueID: a.id, TokenIn: u.Token1, TokenOut: u.Token0},
			Curve:        rev,
			FeeBps:       a.feeBps,
			LiquidityWei: new(big.Int).Set(u.Reserve1),
			UpdatedAt:    u.Timestamp,
		},
	}, nil
}

// Quote prices amountIn through the latest known reserves for the pair.
func (a *UniswapV2Adapter) Quote(tokenIn, tokenOut common.Address, amountIn *big.Int) (Quote, error) {
	a.mu.RLock()
	curve, ok := a.pairs[pairKey{tokenIn, tokenOut}]
	a.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("venue %s: no state for %s->%s: %w",
			a.id, tokenIn.Hex(), tokenOut.Hex(), domain.ErrNotFound)
	}
	return Quote{
		AmountOut: curve.AmountOut(amountIn),
		FeeBps:    a.feeBps,
		Liquidity: new(big.Int).Set(curve.ReserveIn),
	}, nil
}

var _ Adapter = (*UniswapV2Adapter)(nil)
