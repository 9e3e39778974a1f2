package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cycleforge/flasharb/internal/discovery"
	"github.com/cycleforge/flasharb/internal/domain"
	"github.com/cycleforge/flasharb/internal/executor"
	"github.com/cycleforge/flasharb/internal/feed"
	"github.com/cycleforge/flasharb/internal/notify"
	"github.com/cycleforge/flasharb/internal/pathfind"
	"github.com/cycleforge/flasharb/internal/risk"
	"github.com/cycleforge/flasharb/internal/scanner"
)

// MonitorMode runs the full detection pipeline without an executor: profitable
// cycles are validated and reported, never submitted. Useful for calibrating
// thresholds against live traffic before risking capital.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runPipeline(ctx, deps, nil)
}

// TradeMode runs detection plus execution: accepted candidates are handed to
// the coordinator, which re-quotes, submits, and journals every attempt.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	if a.txBuilder == nil {
		return &domain.ConfigurationError{
			Field:  "mode",
			Reason: "trade mode requires a transaction builder; embed one via app.WithTxBuilder",
		}
	}
	if deps.Attempts == nil {
		return &domain.ConfigurationError{
			Field:  "postgres",
			Reason: "trade mode requires the attempt journal",
		}
	}

	submitter := executor.NewChainSubmitter(deps.Chain, a.txBuilder)
	requoter := executor.NewGraphRequoter(
		deps.Graph, submitter, a.cfg.Engine.GasPerHop, a.cfg.Engine.SlippageBps, a.cfg.Engine.MinProfit(),
	)
	coord := executor.NewCoordinator(
		a.cfg.Execution, deps.Locks, deps.Attempts, requoter, submitter, deps.Notifier, a.logger,
	)
	return a.runPipeline(ctx, deps, coord)
}

// runPipeline starts the goroutines shared by every mode: the chain manager,
// venue feed ingestion, token metadata refresh, the status reporter, and the
// scan loop. exec is nil in monitor mode.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, exec scanner.Executor) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Chain.Run(ctx)
	})

	feeds := make(map[string]string, len(a.cfg.Venues))
	for _, v := range a.cfg.Venues {
		if v.FeedURL != "" {
			feeds[v.ID] = v.FeedURL
		}
	}
	ingestor := feed.NewIngestor(deps.Graph, deps.Registry, deps.Chain, feeds, a.logger)
	g.Go(func() error {
		return ingestor.Run(ctx)
	})

	source := a.tokenSource
	if source == nil {
		source = discovery.NewStaticSource(nil)
	}
	refresher := discovery.NewRefresher(
		source, deps.TokenMeta,
		a.cfg.Discovery.RefreshInterval.Duration,
		a.cfg.Discovery.Blacklist, a.cfg.Discovery.Whitelist,
		a.logger,
	)
	g.Go(func() error {
		return refresher.Run(ctx)
	})

	reporter := notify.NewStatusReporter(
		deps.Notifier, deps.Stats, a.cfg.Notify.StatusInterval.Duration, a.logger,
	)
	g.Go(func() error {
		return reporter.Run(ctx)
	})

	// Base tokens are always tradable: the cycle borrows and repays in them,
	// so the age/audit gate would otherwise reject every candidate whose
	// root token predates the metadata source.
	whitelist := make([]string, 0, len(a.cfg.Discovery.Whitelist)+len(a.cfg.Engine.BaseTokens))
	whitelist = append(whitelist, a.cfg.Discovery.Whitelist...)
	whitelist = append(whitelist, a.cfg.Engine.BaseTokens...)

	validator := risk.New(
		a.cfg.Risk, deps.Registry, deps.TokenMeta,
		a.cfg.Engine.MinProfit(), whitelist, a.logger,
	)
	finder := pathfind.New(deps.Registry.Weight, a.cfg.Engine.GasPerHop)
	sc := scanner.New(
		a.cfg.Engine, deps.Graph, finder, validator,
		exec, deps.Notifier, deps.Chain, deps.Chain, deps.Chain.Heads(),
		deps.Stats, a.logger,
	)
	g.Go(func() error {
		return sc.Run(ctx)
	})

	return g.Wait()
}
