package venue

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleforge/flasharb/internal/config"
	"github.com/cycleforge/flasharb/internal/domain"
)

var (
	weth = common.HexToAddress("0x0000000000000000000000000000000000000001")
	dai  = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func ethWei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestConstantProductCurveMatchesRouterMath(t *testing.T) {
	// 10 WETH / 29000 DAI pool, 0.3% fee, swap 1 WETH.
	curve := ConstantProductCurve{
		ReserveIn:  ethWei(10),
		ReserveOut: new(big.Int).Mul(big.NewInt(29_000), big.NewInt(1e18)),
		FeeBps:     30,
	}

	out := curve.AmountOut(big.NewInt(1e18))

	// reserveOut * 0.997e18 / (10e18 + 0.997e18), rounded down.
	inAfterFee := big.NewInt(997_000_000_000_000_000)
	want := new(big.Int).Mul(curve.ReserveOut, inAfterFee)
	want.Div(want, new(big.Int).Add(curve.ReserveIn, inAfterFee))
	assert.Zero(t, out.Cmp(want))
	// Sanity: ~2629 DAI, well under the zero-impact 2900.
	assert.Equal(t, 1, out.Cmp(new(big.Int).Mul(big.NewInt(2_600), big.NewInt(1e18))))
	assert.Equal(t, -1, out.Cmp(new(big.Int).Mul(big.NewInt(2_900), big.NewInt(1e18))))
}

func TestConstantProductCurveDegenerateInputs(t *testing.T) {
	curve := ConstantProductCurve{ReserveIn: big.NewInt(10), ReserveOut: big.NewInt(10), FeeBps: 30}
	assert.Zero(t, curve.AmountOut(nil).Sign())
	assert.Zero(t, curve.AmountOut(big.NewInt(0)).Sign())
	assert.Zero(t, curve.AmountOut(big.NewInt(-5)).Sign())

	empty := ConstantProductCurve{ReserveIn: big.NewInt(0), ReserveOut: big.NewInt(10), FeeBps: 30}
	assert.Zero(t, empty.AmountOut(big.NewInt(100)).Sign())
}

func TestQuotedRateCurveAppliesRateAndFee(t *testing.T) {
	// 2900 DAI per WETH, 0.1% fee.
	curve := QuotedRateCurve{RateNum: big.NewInt(2900), RateDen: big.NewInt(1), FeeBps: 10}
	out := curve.AmountOut(big.NewInt(1e18))

	want := new(big.Int).Mul(big.NewInt(1e18), big.NewInt(2900))
	want.Mul(want, big.NewInt(9990))
	want.Div(want, big.NewInt(10_000))
	assert.Zero(t, out.Cmp(want))
}

func TestUniswapV2AdapterUpdateProducesBothDirections(t *testing.T) {
	a := NewUniswapV2Adapter("uniswap_v2", 30)
	edges, err := a.Update(PairUpdate{
		VenueID:   "uniswap_v2",
		Token0:    weth,
		Token1:    dai,
		Reserve0:  ethWei(10),
		Reserve1:  new(big.Int).Mul(big.NewInt(29_000), big.NewInt(1e18)),
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, edges, 2)

	assert.Equal(t, domain.EdgeKey{VenueID: "uniswap_v2", TokenIn: weth, TokenOut: dai}, edges[0].Key)
	assert.Equal(t, domain.EdgeKey{VenueID: "uniswap_v2", TokenIn: dai, TokenOut: weth}, edges[1].Key)
	assert.Zero(t, edges[0].LiquidityWei.Cmp(ethWei(10)))

	q, err := a.Quote(weth, dai, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Zero(t, q.AmountOut.Cmp(edges[0].Curve.AmountOut(big.NewInt(1e18))))
}

func TestUniswapV2AdapterRejectsEmptyReserves(t *testing.T) {
	a := NewUniswapV2Adapter("uniswap_v2", 30)
	_, err := a.Update(PairUpdate{Token0: weth, Token1: dai, Reserve0: big.NewInt(0), Reserve1: big.NewInt(1)})
	require.Error(t, err)

	_, err = a.Quote(weth, dai, big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUniswapV2AdapterEdgesSurviveLaterUpdates(t *testing.T) {
	a := NewUniswapV2Adapter("uniswap_v2", 30)
	first, err := a.Update(PairUpdate{
		Token0: weth, Token1: dai,
		Reserve0: ethWei(10),
		Reserve1: new(big.Int).Mul(big.NewInt(29_000), big.NewInt(1e18)),
	})
	require.NoError(t, err)
	before := first[0].Curve.AmountOut(big.NewInt(1e18))

	_, err = a.Update(PairUpdate{
		Token0: weth, Token1: dai,
		Reserve0: ethWei(20),
		Reserve1: new(big.Int).Mul(big.NewInt(29_000), big.NewInt(1e18)),
	})
	require.NoError(t, err)

	// The edge handed out earlier still prices off the old reserves.
	assert.Zero(t, first[0].Curve.AmountOut(big.NewInt(1e18)).Cmp(before))
}

func TestQuotedAdapterReciprocalRate(t *testing.T) {
	a := NewQuotedAdapter("rfq", 0)
	edges, err := a.Update(PairUpdate{
		Token0:  weth,
		Token1:  dai,
		RateNum: big.NewInt(2900),
		RateDen: big.NewInt(1),
	})
	require.NoError(t, err)
	require.Len(t, edges, 2)

	fwd := edges[0].Curve.AmountOut(big.NewInt(1e18))
	assert.Zero(t, fwd.Cmp(new(big.Int).Mul(big.NewInt(2900), big.NewInt(1e18))))

	rev := edges[1].Curve.AmountOut(new(big.Int).Mul(big.NewInt(2900), big.NewInt(1e18)))
	assert.Zero(t, rev.Cmp(big.NewInt(1e18)))
}

func TestRegistryRejectsDuplicateAndMismatchedIDs(t *testing.T) {
	r := NewRegistry()
	v := domain.Venue{ID: "uniswap_v2", ActivatedAt: time.Now()}
	require.NoError(t, r.Register(v, NewUniswapV2Adapter("uniswap_v2", 30)))

	err := r.Register(v, NewUniswapV2Adapter("uniswap_v2", 30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = r.Register(domain.Venue{ID: "sushiswap"}, NewUniswapV2Adapter("uniswap_v2", 30))
	require.Error(t, err)
}

func TestFromConfigBuildsAdaptersByKind(t *testing.T) {
	now := time.Now().UTC()
	r, err := FromConfig([]config.VenueConfig{
		{ID: "uniswap_v2", Kind: "uniswap_v2", FeeBps: 30, Weight: 1.0, ActivatedAt: "2024-01-01T00:00:00Z"},
		{ID: "rfq", Kind: "quoted", FeeBps: 10, Weight: 0.5},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, []string{"rfq", "uniswap_v2"}, r.List())
	assert.Equal(t, 1.0, r.Weight("uniswap_v2"))
	assert.Equal(t, 0.0, r.Weight("unknown"))

	uni, err := r.Venue("uniswap_v2")
	require.NoError(t, err)
	assert.Equal(t, 2024, uni.ActivatedAt.Year())

	// No explicit activation: treated as just activated, full delay applies.
	rfq, err := r.Venue("rfq")
	require.NoError(t, err)
	assert.True(t, rfq.ActivatedAt.Equal(now))
	assert.False(t, rfq.Eligible(now.Add(time.Minute), time.Hour))

	a, err := r.Adapter("rfq")
	require.NoError(t, err)
	assert.IsType(t, &QuotedAdapter{}, a)
}

func TestFromConfigCarriesBlacklistFlag(t *testing.T) {
	r, err := FromConfig([]config.VenueConfig{
		{ID: "uniswap_v2", Kind: "uniswap_v2", FeeBps: 30, Weight: 1.0},
		{ID: "rugdex", Kind: "quoted", FeeBps: 10, Weight: 0.5, Blacklisted: true},
	}, time.Now())
	require.NoError(t, err)

	bad, err := r.Venue("rugdex")
	require.NoError(t, err)
	assert.True(t, bad.Blacklisted)

	ok, err := r.Venue("uniswap_v2")
	require.NoError(t, err)
	assert.False(t, ok.Blacklisted)
}

func TestFromConfigRejectsUnknownKind(t *testing.T) {
	_, err := FromConfig([]config.VenueConfig{{ID: "x", Kind: "orderbook"}}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}
