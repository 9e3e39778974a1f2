package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleforge/flasharb/internal/domain"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	scam = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

type memCache struct {
	mu          sync.Mutex
	metas       map[common.Address]domain.TokenMeta
	blacklisted map[common.Address]bool
}

func newMemCache() *memCache {
	return &memCache{
		metas:       make(map[common.Address]domain.TokenMeta),
		blacklisted: make(map[common.Address]bool),
	}
}

func (c *memCache) Set(_ context.Context, meta domain.TokenMeta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metas[meta.Address] = meta
	return nil
}

func (c *memCache) Get(_ context.Context, address string) (domain.TokenMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metas[common.HexToAddress(address)]
	if !ok {
		return domain.TokenMeta{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *memCache) SetBlacklist(_ context.Context, addresses []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range addresses {
		c.blacklisted[common.HexToAddress(a)] = true
	}
	return nil
}

func (c *memCache) IsBlacklisted(_ context.Context, address string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blacklisted[common.HexToAddress(address)], nil
}

type failingSource struct{}

func (failingSource) FetchAll(context.Context) ([]domain.TokenMeta, error) {
	return nil, errors.New("indexer unavailable")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefreshAppliesConfigOverrides(t *testing.T) {
	discovered := time.Now().UTC().Add(-48 * time.Hour)
	source := NewStaticSource([]domain.TokenMeta{
		{Address: weth, Symbol: "WETH", DiscoveredAt: discovered, AuditScore: 99},
		{Address: dai, Symbol: "DAI", DiscoveredAt: discovered, AuditScore: 95},
		{Address: scam, Symbol: "SCM", DiscoveredAt: discovered, AuditScore: 80},
	})
	cache := newMemCache()
	r := NewRefresher(source, cache, time.Minute,
		[]string{scam.Hex()}, []string{dai.Hex()}, discardLogger())

	require.NoError(t, r.seedBlacklist(context.Background()))
	r.refresh(context.Background())

	got, err := cache.Get(context.Background(), scam.Hex())
	require.NoError(t, err)
	assert.True(t, got.Blacklisted, "configured blacklist must override the source")

	got, err = cache.Get(context.Background(), dai.Hex())
	require.NoError(t, err)
	assert.True(t, got.Whitelisted, "configured whitelist must override the source")
	assert.False(t, got.UpdatedAt.IsZero())

	listed, err := cache.IsBlacklisted(context.Background(), scam.Hex())
	require.NoError(t, err)
	assert.True(t, listed, "blacklist must be seeded before the first fetch")
}

func TestRefreshKeepsCacheOnSourceFailure(t *testing.T) {
	cache := newMemCache()
	require.NoError(t, cache.Set(context.Background(), domain.TokenMeta{Address: weth, AuditScore: 99}))

	r := NewRefresher(failingSource{}, cache, time.Minute, nil, nil, discardLogger())
	r.refresh(context.Background())

	got, err := cache.Get(context.Background(), weth.Hex())
	require.NoError(t, err)
	assert.Equal(t, 99, got.AuditScore, "a failed fetch must not clear the last good metadata")
}

func TestRunStopsOnCancel(t *testing.T) {
	r := NewRefresher(NewStaticSource(nil), newMemCache(), 10*time.Millisecond, nil, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop")
	}
}
