// Package app provides the top-level application lifecycle for the arbitrage
// engine. It wires together all dependencies (chain manager, market graph,
// caches, the attempt journal, and notifications) and starts the goroutines
// for the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cycleforge/flasharb/internal/config"
	"github.com/cycleforge/flasharb/internal/discovery"
	"github.com/cycleforge/flasharb/internal/executor"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()

	txBuilder   executor.TxBuilder
	tokenSource discovery.Source
}

// Option customizes an App at construction time.
type Option func(*App)

// WithTxBuilder installs the transaction builder trade mode submits through.
// Wallet custody and bundle encoding live with the embedding operator; without
// a builder, trade mode refuses to start.
func WithTxBuilder(b executor.TxBuilder) Option {
	return func(a *App) { a.txBuilder = b }
}

// WithTokenSource installs the token metadata source the discovery refresher
// pulls from. Defaults to an empty static source, in which case only the
// configured blacklist and whitelist take effect.
func WithTokenSource(s discovery.Source) Option {
	return func(a *App) { a.tokenSource = s }
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting engine",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "trade":
		return a.TradeMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down engine")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
