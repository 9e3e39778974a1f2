package graph

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleforge/flasharb/internal/domain"
)

var (
	weth = common.HexToAddress("0x0000000000000000000000000000000000000001")
	dai  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	scam = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

type stubDirectory map[string]domain.Venue

func (d stubDirectory) Venue(id string) (domain.Venue, error) {
	v, ok := d[id]
	if !ok {
		return domain.Venue{}, domain.ErrNotFound
	}
	return v, nil
}

// flatCurve quotes a constant output regardless of input.
type flatCurve struct{ out int64 }

func (c flatCurve) AmountOut(*big.Int) *big.Int { return big.NewInt(c.out) }

func testEdge(venueID string, in, out common.Address, quote int64, at time.Time) domain.Edge {
	return domain.Edge{
		Key:          domain.EdgeKey{VenueID: venueID, TokenIn: in, TokenOut: out},
		Curve:        flatCurve{out: quote},
		FeeBps:       30,
		LiquidityWei: big.NewInt(1e18),
		UpdatedAt:    at,
	}
}

func activeDirectory(now time.Time) stubDirectory {
	return stubDirectory{
		"uniswap_v2": {ID: "uniswap_v2", Weight: 1.0, ActivatedAt: now.Add(-24 * time.Hour)},
	}
}

func TestApplyReplacesInPlace(t *testing.T) {
	now := time.Now()
	g := New(activeDirectory(now), Options{FreshnessWindow: time.Minute})

	require.NoError(t, g.Apply(testEdge("uniswap_v2", weth, dai, 100, now)))
	require.NoError(t, g.Apply(testEdge("uniswap_v2", weth, dai, 200, now)))

	assert.Equal(t, 1, g.Len())
	snap := g.Snapshot(now)
	e, ok := snap.Lookup(domain.EdgeKey{VenueID: "uniswap_v2", TokenIn: weth, TokenOut: dai})
	require.True(t, ok)
	assert.Equal(t, int64(200), e.Curve.AmountOut(nil).Int64())
}

func TestApplyRejectsBlacklistedToken(t *testing.T) {
	now := time.Now()
	g := New(activeDirectory(now), Options{
		FreshnessWindow:   time.Minute,
		BlacklistedTokens: []common.Address{scam},
	})

	err := g.Apply(testEdge("uniswap_v2", weth, scam, 100, now))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blacklisted")
	assert.Zero(t, g.Len())
}

func TestApplyRejectsUnknownAndBlacklistedVenues(t *testing.T) {
	now := time.Now()
	dir := activeDirectory(now)
	dir["shady"] = domain.Venue{ID: "shady", ActivatedAt: now.Add(-time.Hour), Blacklisted: true}
	g := New(dir, Options{FreshnessWindow: time.Minute})

	err := g.Apply(testEdge("nowhere", weth, dai, 100, now))
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = g.Apply(testEdge("shady", weth, dai, 100, now))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venue blacklisted")
}

func TestSnapshotExcludesStaleEdges(t *testing.T) {
	now := time.Now()
	g := New(activeDirectory(now), Options{FreshnessWindow: 30 * time.Second})

	require.NoError(t, g.Apply(testEdge("uniswap_v2", weth, dai, 100, now.Add(-time.Minute))))
	require.NoError(t, g.Apply(testEdge("uniswap_v2", dai, weth, 100, now.Add(-time.Second))))

	snap := g.Snapshot(now)
	assert.Equal(t, 1, snap.Len())
	assert.Empty(t, snap.EdgesFrom(weth))
	assert.Len(t, snap.EdgesFrom(dai), 1)
}

func TestSnapshotHonorsActivationDelay(t *testing.T) {
	activated := time.Now()
	dir := stubDirectory{
		"newdex": {ID: "newdex", Weight: 1.0, ActivatedAt: activated},
	}
	g := New(dir, Options{FreshnessWindow: 2 * time.Hour, NewVenueDelay: 3600 * time.Second})

	require.NoError(t, g.Apply(testEdge("newdex", weth, dai, 100, activated)))

	// Inside the delay the venue contributes nothing.
	early := g.Snapshot(activated.Add(1000 * time.Second))
	assert.Zero(t, early.Len())

	// Past the delay the same edge appears.
	late := g.Snapshot(activated.Add(3700 * time.Second))
	assert.Equal(t, 1, late.Len())
}

func TestSnapshotIsImmutableUnderLaterApplies(t *testing.T) {
	now := time.Now()
	g := New(activeDirectory(now), Options{FreshnessWindow: time.Minute})
	require.NoError(t, g.Apply(testEdge("uniswap_v2", weth, dai, 100, now)))

	snap := g.Snapshot(now)
	require.NoError(t, g.Apply(testEdge("uniswap_v2", weth, dai, 999, now)))
	require.NoError(t, g.Apply(testEdge("uniswap_v2", dai, weth, 100, now)))

	// The earlier view still reports the pre-update state.
	assert.Equal(t, 1, snap.Len())
	e, ok := snap.Lookup(domain.EdgeKey{VenueID: "uniswap_v2", TokenIn: weth, TokenOut: dai})
	require.True(t, ok)
	assert.Equal(t, int64(100), e.Curve.AmountOut(nil).Int64())
}

func TestApplyAllAbortsOnFirstRejection(t *testing.T) {
	now := time.Now()
	g := New(activeDirectory(now), Options{FreshnessWindow: time.Minute})

	err := g.ApplyAll([]domain.Edge{
		testEdge("uniswap_v2", weth, dai, 100, now),
		testEdge("nowhere", dai, weth, 100, now),
	})
	require.Error(t, err)
	assert.Equal(t, 1, g.Len())
}

func TestSetBlockIsMonotonic(t *testing.T) {
	g := New(stubDirectory{}, Options{})
	g.SetBlock(100)
	g.SetBlock(90) // stale head from a failover replay
	assert.Equal(t, uint64(100), g.Block())

	g.SetBlock(101)
	assert.Equal(t, uint64(101), g.Block())
	assert.Equal(t, uint64(101), g.Snapshot(time.Now()).Block)
}
