// Package discovery maintains the token metadata the risk validator consults:
// discovery age, audit score, and the blacklist/whitelist sets. The scoring
// heuristics themselves live with an external source; this package only
// refreshes the shared cache on its own cadence, independent of the scan
// loop.
package discovery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cycleforge/flasharb/internal/domain"
)

// Source provides token metadata from an external system (indexer, audit
// provider, curated list).
type Source interface {
	FetchAll(ctx context.Context) ([]domain.TokenMeta, error)
}

// Refresher periodically pulls metadata from the source into the shared
// cache, applying the operator's configured blacklist and whitelist on top of
// whatever the source reports.
type Refresher struct {
	source    Source
	cache     domain.TokenMetaCache
	interval  time.Duration
	blacklist map[common.Address]bool
	whitelist map[common.Address]bool
	logger    *slog.Logger
}

// NewRefresher builds a Refresher. blacklist and whitelist come from config
// and override the source on every refresh.
func NewRefresher(source Source, cache domain.TokenMetaCache, interval time.Duration, blacklist, whitelist []string, logger *slog.Logger) *Refresher {
	return &Refresher{
		source:    source,
		cache:     cache,
		interval:  interval,
		blacklist: toAddressSet(blacklist),
		whitelist: toAddressSet(whitelist),
		logger:    logger.With(slog.String("component", "discovery")),
	}
}

// Run refreshes immediately, then on every tick until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	if err := r.seedBlacklist(ctx); err != nil {
		r.logger.Error("blacklist seed failed", slog.String("error", err.Error()))
	}
	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// seedBlacklist pushes the configured blacklist into the cache so lookups
// reject those tokens even before the first source fetch completes.
func (r *Refresher) seedBlacklist(ctx context.Context) error {
	if len(r.blacklist) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(r.blacklist))
	for a := range r.blacklist {
		addrs = append(addrs, a.Hex())
	}
	return r.cache.SetBlacklist(ctx, addrs)
}

func (r *Refresher) refresh(ctx context.Context) {
	metas, err := r.source.FetchAll(ctx)
	if err != nil {
		// Stale metadata stays in the cache; the validator's age check keeps
		// working off the last good refresh.
		r.logger.Warn("metadata fetch failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	stored := 0
	for _, meta := range metas {
		if r.blacklist[meta.Address] {
			meta.Blacklisted = true
		}
		if r.whitelist[meta.Address] {
			meta.Whitelisted = true
		}
		meta.UpdatedAt = now
		if err := r.cache.Set(ctx, meta); err != nil {
			r.logger.Warn("metadata store failed",
				slog.String("token", meta.Address.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		stored++
	}
	r.logger.Info("token metadata refreshed",
		slog.Int("fetched", len(metas)),
		slog.Int("stored", stored),
	)
}

func toAddressSet(addrs []string) map[common.Address]bool {
	set := make(map[common.Address]bool, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if common.IsHexAddress(a) {
			set[common.HexToAddress(a)] = true
		}
	}
	return set
}

// StaticSource serves a fixed token list, for deployments that pin their
// tradable universe in configuration instead of an indexer.
type StaticSource struct {
	tokens []domain.TokenMeta
}

// NewStaticSource copies the given metadata.
func NewStaticSource(tokens []domain.TokenMeta) *StaticSource {
	return &StaticSource{tokens: append([]domain.TokenMeta(nil), tokens...)}
}

// FetchAll implements Source.
func (s *StaticSource) FetchAll(context.Context) ([]domain.TokenMeta, error) {
	return append([]domain.TokenMeta(nil), s.tokens...), nil
}
