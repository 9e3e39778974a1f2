package executor

import (
	"context"
	"math/big"
	"time"

	"github.com/cycleforge/flasharb/internal/domain"
	"github.com/cycleforge/flasharb/internal/graph"
)

// GasPricer supplies the current gas price; the chain manager implements it.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GraphRequoter re-prices a candidate hop by hop against a fresh graph
// snapshot, with the same slippage haircut and depth cap the finder applied
// at detection time. A hop whose edge has gone stale, vanished, or lost its
// depth, or a re-quoted net profit below the threshold, yields a
// PreflightMismatchError.
type GraphRequoter struct {
	graph       *graph.Graph
	gas         GasPricer
	gasPerHop   uint64
	slippageBps int64
	minProfit   *big.Int
}

// NewGraphRequoter builds a requoter over the live graph.
func NewGraphRequoter(g *graph.Graph, gas GasPricer, gasPerHop uint64, slippageBps int64, minProfit *big.Int) *GraphRequoter {
	return &GraphRequoter{graph: g, gas: gas, gasPerHop: gasPerHop, slippageBps: slippageBps, minProfit: minProfit}
}

// Requote implements Requoter.
func (r *GraphRequoter) Requote(ctx context.Context, cand domain.CycleCandidate) (*big.Int, error) {
	snap := r.graph.Snapshot(time.Now())

	amount := new(big.Int).Set(cand.AmountIn)
	for _, hop := range cand.Hops {
		edge, ok := snap.Lookup(hop.Edge.Key)
		if !ok {
			return nil, &domain.PreflightMismatchError{
				Reason: "edge " + hop.Edge.Key.String() + " no longer quotable",
			}
		}
		if edge.LiquidityWei != nil && edge.LiquidityWei.Sign() > 0 && amount.Cmp(edge.LiquidityWei) > 0 {
			return nil, &domain.PreflightMismatchError{
				Reason: "hop " + hop.Edge.Key.String() + " input exceeds posted depth",
			}
		}
		amount = edge.Curve.AmountOut(amount)
		if amount.Sign() <= 0 {
			return nil, &domain.PreflightMismatchError{
				Reason: "hop " + hop.Edge.Key.String() + " quotes to zero",
			}
		}
		if r.slippageBps > 0 {
			amount.Mul(amount, big.NewInt(bpsDenominator-r.slippageBps))
			amount.Div(amount, big.NewInt(bpsDenominator))
		}
	}

	gasPrice, err := r.gas.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	gasCost := new(big.Int).Mul(
		new(big.Int).SetUint64(uint64(len(cand.Hops))*r.gasPerHop),
		gasPrice,
	)

	net := new(big.Int).Sub(amount, cand.AmountIn)
	net.Sub(net, gasCost)
	if net.Cmp(r.minProfit) < 0 {
		return nil, &domain.PreflightMismatchError{
			Reason:   "re-quoted profit below threshold",
			Expected: cand.NetProfit,
			Requoted: net,
		}
	}
	return net, nil
}
