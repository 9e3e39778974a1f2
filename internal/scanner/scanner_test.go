package scanner

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleforge/flasharb/internal/chain"
	"github.com/cycleforge/flasharb/internal/config"
	"github.com/cycleforge/flasharb/internal/domain"
	"github.com/cycleforge/flasharb/internal/graph"
	"github.com/cycleforge/flasharb/internal/pathfind"
	"github.com/cycleforge/flasharb/internal/risk"
	"github.com/cycleforge/flasharb/internal/venue"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

type fakeExecutor struct {
	mu    sync.Mutex
	cands []domain.CycleCandidate
}

func (f *fakeExecutor) Execute(_ context.Context, cand domain.CycleCandidate) (*domain.ExecutionAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cands = append(f.cands, cand)
	return &domain.ExecutionAttempt{State: domain.AttemptConfirmed}, nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cands)
}

type fixedGas struct{ price *big.Int }

func (g fixedGas) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(g.price), nil
}

type stubMeta map[common.Address]domain.TokenMeta

func (s stubMeta) Set(context.Context, domain.TokenMeta) error { return nil }

func (s stubMeta) Get(_ context.Context, address string) (domain.TokenMeta, error) {
	m, ok := s[common.HexToAddress(address)]
	if !ok {
		return domain.TokenMeta{}, domain.ErrNotFound
	}
	return m, nil
}

func (s stubMeta) SetBlacklist(context.Context, []string) error { return nil }

func (s stubMeta) IsBlacklisted(_ context.Context, address string) (bool, error) {
	return s[common.HexToAddress(address)].Blacklisted, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildMarket seeds two venues with a price discrepancy wide enough to beat
// fees and gas when priced with the tiny test gas price.
func buildMarket(t *testing.T) (*graph.Graph, *venue.Registry) {
	t.Helper()
	reg := venue.NewRegistry()
	activated := time.Now().Add(-24 * time.Hour)
	require.NoError(t, reg.Register(
		domain.Venue{ID: "uniswap_v2", Weight: 1.0, TVLUSD: 5_000_000, ActivatedAt: activated},
		venue.NewUniswapV2Adapter("uniswap_v2", 30),
	))
	require.NoError(t, reg.Register(
		domain.Venue{ID: "sushiswap", Weight: 0.9, TVLUSD: 2_000_000, ActivatedAt: activated},
		venue.NewQuotedAdapter("sushiswap", 30),
	))

	g := graph.New(reg, graph.Options{
		FreshnessWindow: time.Minute,
		NewVenueDelay:   time.Hour,
	})

	// Deep WETH/DAI pool at 1:3000.
	uni, err := reg.Adapter("uniswap_v2")
	require.NoError(t, err)
	edges, err := uni.Update(venue.PairUpdate{
		VenueID:   "uniswap_v2",
		Token0:    weth,
		Token1:    dai,
		Reserve0:  wei("10000000000000000000000"),    // 10,000 WETH
		Reserve1:  wei("30000000000000000000000000"), // 30,000,000 DAI
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, g.ApplyAll(edges))

	// Quoted venue buys DAI at an off-market 1:2900, closing the loop rich.
	sushi, err := reg.Adapter("sushiswap")
	require.NoError(t, err)
	edges, err = sushi.Update(venue.PairUpdate{
		VenueID:   "sushiswap",
		Token0:    dai,
		Token1:    weth,
		RateNum:   big.NewInt(1),
		RateDen:   big.NewInt(2900),
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, g.ApplyAll(edges))

	return g, reg
}

func wei(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad wei literal " + s)
	}
	return n
}

func engineConfig() config.EngineConfig {
	return config.EngineConfig{
		BaseTokens:      []string{weth.Hex()},
		BorrowAmountWei: "1000000000000000000", // 1 WETH
		MinProfitWei:    "100000000000000",
		MaxHops:         3,
		GasPerHop:       300_000,
		FreshnessWindow: config.Duration{Duration: time.Minute},
		ScanTimeout:     config.Duration{Duration: 5 * time.Second},
		MaxCandidates:   16,
	}
}

func newValidator(reg *venue.Registry) *risk.Validator {
	old := time.Now().Add(-90 * 24 * time.Hour)
	meta := stubMeta{
		weth: {Address: weth, DiscoveredAt: old, AuditScore: 99},
		dai:  {Address: dai, DiscoveredAt: old, AuditScore: 95},
	}
	cfg := config.RiskConfig{
		ExposureCapWei:     "2000000000000000000",
		TVLFloorUSD:        100_000,
		MinTokenAge:        config.Duration{Duration: 24 * time.Hour},
		RequiredAuditScore: 70,
		SafetyMarginBps:    50,
	}
	return risk.New(cfg, reg, meta, wei("100000000000000"), nil, discardLogger())
}

func newScanner(t *testing.T, exec Executor, heads <-chan chain.HeadEvent) (*Scanner, *Stats, *fakeExecutor) {
	t.Helper()
	g, reg := buildMarket(t)
	stats := NewStats()
	finder := pathfind.New(reg.Weight, 300_000)
	s := New(engineConfig(), g, finder, newValidator(reg), exec, nil,
		fixedGas{big.NewInt(1)}, nil, heads, stats, discardLogger())
	fe, _ := exec.(*fakeExecutor)
	return s, stats, fe
}

func TestScanDispatchesAcceptedCandidates(t *testing.T) {
	exec := &fakeExecutor{}
	s, stats, _ := newScanner(t, exec, nil)

	s.scan(context.Background(), chain.HeadEvent{Number: 18_000_000})
	s.wg.Wait()

	assert.Equal(t, uint64(1), stats.Scans.Load())
	assert.Greater(t, stats.Candidates.Load(), uint64(0))
	assert.Greater(t, stats.Accepted.Load(), uint64(0))
	assert.Equal(t, stats.Dispatched.Load(), uint64(exec.count()))
	require.Greater(t, exec.count(), 0)
	assert.Equal(t, uint64(18_000_000), exec.cands[0].Block)
}

func TestScanMonitorModeNeverExecutes(t *testing.T) {
	g, reg := buildMarket(t)
	stats := NewStats()
	finder := pathfind.New(reg.Weight, 300_000)
	s := New(engineConfig(), g, finder, newValidator(reg), nil, nil,
		fixedGas{big.NewInt(1)}, nil, nil, stats, discardLogger())

	s.scan(context.Background(), chain.HeadEvent{Number: 18_000_000})
	s.wg.Wait()

	assert.Greater(t, stats.Accepted.Load(), uint64(0))
	assert.Equal(t, uint64(0), stats.Dispatched.Load())
}

func TestRunSupersedesInFlightScan(t *testing.T) {
	heads := make(chan chain.HeadEvent)
	exec := &fakeExecutor{}
	s, stats, _ := newScanner(t, exec, heads)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = s.Run(ctx) }()

	heads <- chain.HeadEvent{Number: 100}
	heads <- chain.HeadEvent{Number: 101}

	deadline := time.Now().Add(3 * time.Second)
	for stats.Superseded.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, uint64(1), stats.Superseded.Load())

	cancel()
	<-done
}

func TestScanSkipsWhenAllEdgesStale(t *testing.T) {
	reg := venue.NewRegistry()
	require.NoError(t, reg.Register(
		domain.Venue{ID: "uniswap_v2", Weight: 1.0, TVLUSD: 5_000_000, ActivatedAt: time.Now().Add(-24 * time.Hour)},
		venue.NewUniswapV2Adapter("uniswap_v2", 30),
	))
	g := graph.New(reg, graph.Options{FreshnessWindow: time.Minute, NewVenueDelay: time.Hour})

	uni, err := reg.Adapter("uniswap_v2")
	require.NoError(t, err)
	edges, err := uni.Update(venue.PairUpdate{
		VenueID:   "uniswap_v2",
		Token0:    weth,
		Token1:    dai,
		Reserve0:  wei("10000000000000000000000"),
		Reserve1:  wei("30000000000000000000000000"),
		Timestamp: time.Now().Add(-5 * time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, g.ApplyAll(edges))

	exec := &fakeExecutor{}
	stats := NewStats()
	finder := pathfind.New(reg.Weight, 300_000)
	s := New(engineConfig(), g, finder, newValidator(reg), exec, nil,
		fixedGas{big.NewInt(1)}, nil, nil, stats, discardLogger())

	s.scan(context.Background(), chain.HeadEvent{Number: 100})
	s.wg.Wait()

	assert.Equal(t, uint64(1), stats.Scans.Load())
	assert.Equal(t, uint64(0), stats.Candidates.Load())
	assert.Equal(t, 0, exec.count())
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) countOf(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

func TestScanSuppressesRepeatCandidateAlerts(t *testing.T) {
	g, reg := buildMarket(t)
	stats := NewStats()
	notifier := &recordingNotifier{}
	finder := pathfind.New(reg.Weight, 300_000)
	s := New(engineConfig(), g, finder, newValidator(reg), nil, notifier,
		fixedGas{big.NewInt(1)}, nil, nil, stats, discardLogger())

	// The same cycle stays profitable over two consecutive heads; the
	// operator hears about it once per freshness window.
	s.scan(context.Background(), chain.HeadEvent{Number: 100})
	s.scan(context.Background(), chain.HeadEvent{Number: 101})
	s.wg.Wait()

	assert.Equal(t, 1, notifier.countOf(domain.EventCandidateFound))
	assert.Equal(t, uint64(2), stats.Scans.Load())
}
