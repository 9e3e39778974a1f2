// Package pathfind searches market graph snapshots for profitable cycles.
// Each call is independent: the finder carries no state between scans, so a
// scan abandoned mid-flight leaves nothing behind.
package pathfind

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/cycleforge/flasharb/internal/domain"
	"github.com/cycleforge/flasharb/internal/graph"
)

const bpsDenominator = 10_000

// Params bound one search pass.
type Params struct {
	Base        common.Address
	AmountIn    *big.Int // fixed-point input in base token smallest units
	MaxHops     int
	MinProfit   *big.Int
	GasPriceWei *big.Int
	SlippageBps int64 // haircut on every hop's estimated output; 0 disables
	MaxResults  int   // 0 means unlimited
}

// Finder runs bounded-depth cycle searches over graph snapshots. WeightOf
// supplies venue trust weights for tie-breaking; GasPerHop is the amortized
// gas estimate per swap hop.
type Finder struct {
	weightOf  func(venueID string) float64
	gasPerHop uint64
}

// New creates a Finder.
func New(weightOf func(venueID string) float64, gasPerHop uint64) *Finder {
	return &Finder{weightOf: weightOf, gasPerHop: gasPerHop}
}

// FindProfitableCycles returns every cycle of length <= MaxHops starting and
// ending at Base whose net output exceeds MinProfit after fees, slippage, and
// gas, ordered by descending net profit. Ties break by higher minimum venue
// weight, then by fewer hops. Amounts propagate through each edge's
// price-impact curve in fixed-point integer arithmetic, shaved by SlippageBps
// per hop; a hop whose input exceeds the edge's posted depth is not taken.
func (f *Finder) FindProfitableCycles(snap *graph.Snapshot, p Params) []domain.CycleCandidate {
	if snap == nil || p.AmountIn == nil || p.AmountIn.Sign() <= 0 || p.MaxHops < 2 {
		return nil
	}

	s := &search{
		finder: f,
		snap:   snap,
		params: p,
	}
	s.visited = map[common.Address]bool{p.Base: true}
	s.walk(p.Base, new(big.Int).Set(p.AmountIn), nil)

	sort.SliceStable(s.found, func(i, j int) bool {
		a, b := s.found[i], s.found[j]
		if c := a.NetProfit.Cmp(b.NetProfit); c != 0 {
			return c > 0
		}
		wa := a.MinWeight(f.weightOf)
		wb := b.MinWeight(f.weightOf)
		if wa != wb {
			return wa > wb
		}
		return len(a.Hops) < len(b.Hops)
	})

	if p.MaxResults > 0 && len(s.found) > p.MaxResults {
		s.found = s.found[:p.MaxResults]
	}
	return s.found
}

// search carries the mutable state of one DFS pass.
type search struct {
	finder  *Finder
	snap    *graph.Snapshot
	params  Params
	visited map[common.Address]bool
	path    []domain.Hop
	found   []domain.CycleCandidate
}

// walk extends the current path from token with the given in-hand amount.
func (s *search) walk(token common.Address, amount *big.Int, prev *domain.Edge) {
	depth := len(s.path)
	if depth >= s.params.MaxHops {
		return
	}

	// Forced last hop: only edges closing the cycle are worth exploring.
	lastHop := depth == s.params.MaxHops-1

	for _, e := range s.snap.EdgesFrom(token) {
		if prev != nil && sameVenuePair(*prev, e) {
			continue
		}
		closes := e.Key.TokenOut == s.params.Base
		if lastHop && !closes {
			continue
		}
		if !closes && s.visited[e.Key.TokenOut] {
			continue
		}
		// A posted depth of zero means unknown; a known depth caps fill size.
		if e.LiquidityWei != nil && e.LiquidityWei.Sign() > 0 && amount.Cmp(e.LiquidityWei) > 0 {
			continue
		}

		out := e.Curve.AmountOut(amount)
		if out.Sign() <= 0 {
			continue
		}
		out = shaveSlippage(out, s.params.SlippageBps)

		hop := domain.Hop{Edge: e, AmountIn: new(big.Int).Set(amount), AmountOut: out}
		s.path = append(s.path, hop)

		if closes {
			if depth >= 1 { // a 1-hop "cycle" cannot exist; keys differ in tokens
				s.record(out)
			}
		} else if s.promising(e.Key.TokenOut, out, depth+1) {
			s.visited[e.Key.TokenOut] = true
			prevEdge := e
			s.walk(e.Key.TokenOut, out, &prevEdge)
			delete(s.visited, e.Key.TokenOut)
		}

		s.path = s.path[:len(s.path)-1]
	}
}

// record materializes the current path as a candidate if its net profit
// clears the threshold.
func (s *search) record(finalOut *big.Int) {
	hops := len(s.path)
	gas := s.gasCost(hops)
	net := new(big.Int).Sub(finalOut, s.params.AmountIn)
	net.Sub(net, gas)
	if net.Cmp(s.params.MinProfit) < 0 {
		return
	}

	cand := domain.CycleCandidate{
		ID:        uuid.New().String(),
		Base:      s.params.Base,
		Hops:      make([]domain.Hop, hops),
		AmountIn:  new(big.Int).Set(s.params.AmountIn),
		AmountOut: new(big.Int).Set(finalOut),
		GasCost:   gas,
		NetProfit: net,
		Block:     s.snap.Block,
		FoundAt:   time.Now().UTC(),
	}
	copy(cand.Hops, s.path)
	s.found = append(s.found, cand)
}

// promising is the cost bound: a partial path is pruned as soon as its
// best-case completion (closing to base with the fee waived on the remaining
// hop) cannot clear MinProfit. Fees, impact, and slippage only destroy value,
// so the feeless direct-close estimate is an upper bound on what any
// completion of the path can return.
func (s *search) promising(token common.Address, amount *big.Int, depth int) bool {
	best := new(big.Int) // best feeless close estimate
	for _, e := range s.snap.EdgesFrom(token) {
		if e.Key.TokenOut != s.params.Base {
			continue
		}
		out := e.Curve.AmountOut(amount)
		if out.Sign() <= 0 {
			continue
		}
		// Waive the fee: out / (1 - fee).
		out.Mul(out, big.NewInt(bpsDenominator))
		out.Div(out, big.NewInt(bpsDenominator-e.FeeBps))
		if out.Cmp(best) > 0 {
			best = out
		}
	}
	if best.Sign() == 0 {
		// No direct route home yet; only worth continuing when at least two
		// hops remain to reach base through another token.
		return depth+2 <= s.params.MaxHops
	}

	bound := new(big.Int).Sub(best, s.params.AmountIn)
	bound.Sub(bound, s.gasCost(depth+1))
	return bound.Cmp(s.params.MinProfit) >= 0
}

// gasCost returns hops * gasPerHop * gasPrice in base token smallest units.
// The base token is assumed to be the chain's wrapped native token, so gas
// converts one-to-one.
func (s *search) gasCost(hops int) *big.Int {
	if s.params.GasPriceWei == nil {
		return new(big.Int)
	}
	cost := new(big.Int).SetUint64(s.finder.gasPerHop)
	cost.Mul(cost, big.NewInt(int64(hops)))
	cost.Mul(cost, s.params.GasPriceWei)
	return cost
}

// shaveSlippage applies the configured tolerance to an estimated hop output.
func shaveSlippage(out *big.Int, bps int64) *big.Int {
	if bps <= 0 {
		return out
	}
	out.Mul(out, big.NewInt(bpsDenominator-bps))
	out.Div(out, big.NewInt(bpsDenominator))
	return out
}

// sameVenuePair reports whether two edges ride the same (venue, unordered
// pair). Two consecutive hops on the same pair are never profitable after
// fees and only waste search budget.
func sameVenuePair(a, b domain.Edge) bool {
	if a.Key.VenueID != b.Key.VenueID {
		return false
	}
	return (a.Key.TokenIn == b.Key.TokenIn && a.Key.TokenOut == b.Key.TokenOut) ||
		(a.Key.TokenIn == b.Key.TokenOut && a.Key.TokenOut == b.Key.TokenIn)
}
