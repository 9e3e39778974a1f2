package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cycleforge/flasharb/internal/cache/redis"
	"github.com/cycleforge/flasharb/internal/chain"
	"github.com/cycleforge/flasharb/internal/config"
	"github.com/cycleforge/flasharb/internal/domain"
	"github.com/cycleforge/flasharb/internal/graph"
	"github.com/cycleforge/flasharb/internal/notify"
	"github.com/cycleforge/flasharb/internal/scanner"
	"github.com/cycleforge/flasharb/internal/store/postgres"
	"github.com/cycleforge/flasharb/internal/venue"
)

// Dependencies bundles everything the operating modes need. It is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry  *venue.Registry
	Graph     *graph.Graph
	Chain     *chain.Manager
	Locks     domain.LockManager
	TokenMeta domain.TokenMetaCache
	Attempts  domain.AttemptStore
	Notifier  *notify.Notifier
	Stats     *scanner.Stats
}

// needsPostgres returns true for modes that journal execution attempts.
func needsPostgres(mode string) bool {
	return mode == "trade"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Stats: scanner.NewStats()}

	// --- Notifications ---
	deps.Notifier = notify.FromConfig(cfg.Notify, logger)

	// --- Venue registry and market graph ---
	registry, err := venue.FromConfig(cfg.Venues, time.Now().UTC())
	if err != nil {
		return nil, nil, fmt.Errorf("wire: venues: %w", err)
	}
	deps.Registry = registry
	deps.Graph = graph.New(registry, graph.Options{
		FreshnessWindow:   cfg.Engine.FreshnessWindow.Duration,
		NewVenueDelay:     cfg.Engine.NewVenueDelay.Duration,
		BlacklistedTokens: hexAddresses(cfg.Discovery.Blacklist),
	})

	// --- Chain connection manager ---
	deps.Chain = chain.NewManager(cfg.Chain, chain.Dial, notify.NewChainEvents(deps.Notifier), logger)

	// --- Redis (lock manager + token metadata cache) ---
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Locks = redis.NewLockManager(redisClient)
	deps.TokenMeta = redis.NewTokenMetaCache(redisClient)

	// --- PostgreSQL (attempt journal, trade mode only) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Attempts = postgres.NewAttemptStore(pgClient.Pool())
	}

	return deps, cleanup, nil
}

// hexAddresses parses valid hex addresses out of a config string list,
// silently skipping malformed entries (Validate already warned on them).
func hexAddresses(raw []string) []common.Address {
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if common.IsHexAddress(s) {
			out = append(out, common.HexToAddress(s))
		}
	}
	return out
}
