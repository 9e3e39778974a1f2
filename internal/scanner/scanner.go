// Package scanner drives the per-block detection pipeline: on every new head
// it takes a graph snapshot, searches it for profitable cycles, filters them
// through the risk validator, and hands survivors to the execution
// coordinator. A scan still running when a newer block arrives is cancelled,
// never awaited: its results would describe a market that no longer exists.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cycleforge/flasharb/internal/chain"
	"github.com/cycleforge/flasharb/internal/config"
	"github.com/cycleforge/flasharb/internal/domain"
	"github.com/cycleforge/flasharb/internal/graph"
	"github.com/cycleforge/flasharb/internal/pathfind"
	"github.com/cycleforge/flasharb/internal/risk"
)

// Executor accepts validated candidates. Nil in monitor mode.
type Executor interface {
	Execute(ctx context.Context, cand domain.CycleCandidate) (*domain.ExecutionAttempt, error)
}

// Notifier publishes candidate and rejection events.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// GasPricer supplies the gas price used to cost candidate gas during search.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Pauser reports the chain manager's hard-stop state.
type Pauser interface {
	Paused() bool
}

// Scanner runs the detection pipeline. One Scanner instance owns the scan
// loop; scans themselves run in a goroutine per head so the loop can cancel
// and move on when the chain outpaces the search.
type Scanner struct {
	cfg       config.EngineConfig
	graph     *graph.Graph
	finder    *pathfind.Finder
	validator *risk.Validator
	executor  Executor
	notifier  Notifier
	gas       GasPricer
	pauser    Pauser
	heads     <-chan chain.HeadEvent
	stats     *Stats
	alerts    *alertDedup
	logger    *slog.Logger

	baseTokens []common.Address

	wg sync.WaitGroup
}

// New wires a Scanner. executor may be nil (monitor mode: detect and report,
// never submit).
func New(
	cfg config.EngineConfig,
	g *graph.Graph,
	finder *pathfind.Finder,
	validator *risk.Validator,
	executor Executor,
	notifier Notifier,
	gas GasPricer,
	pauser Pauser,
	heads <-chan chain.HeadEvent,
	stats *Stats,
	logger *slog.Logger,
) *Scanner {
	bases := make([]common.Address, 0, len(cfg.BaseTokens))
	for _, b := range cfg.BaseTokens {
		bases = append(bases, common.HexToAddress(b))
	}
	return &Scanner{
		cfg:        cfg,
		graph:      g,
		finder:     finder,
		validator:  validator,
		executor:   executor,
		notifier:   notifier,
		gas:        gas,
		pauser:     pauser,
		heads:      heads,
		stats:      stats,
		alerts:     newAlertDedup(cfg.FreshnessWindow.Duration),
		logger:     logger.With(slog.String("component", "scanner")),
		baseTokens: bases,
	}
}

// Run consumes head events until ctx is cancelled. Each head supersedes the
// previous scan.
func (s *Scanner) Run(ctx context.Context) error {
	var cancelPrev context.CancelCauseFunc

	for {
		select {
		case <-ctx.Done():
			if cancelPrev != nil {
				cancelPrev(ctx.Err())
			}
			s.wg.Wait()
			return ctx.Err()

		case head := <-s.heads:
			if cancelPrev != nil {
				cancelPrev(domain.ErrScanSuperseded)
				s.stats.Superseded.Add(1)
			}
			if s.pauser != nil && s.pauser.Paused() {
				s.logger.Warn("skipping scan, quoting paused", slog.Uint64("block", head.Number))
				cancelPrev = nil
				continue
			}

			scanCtx, cancel := context.WithCancelCause(ctx)
			cancelPrev = cancel
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.scan(scanCtx, head)
			}()
		}
	}
}

// scan runs one full detection pass for a head.
func (s *Scanner) scan(ctx context.Context, head chain.HeadEvent) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout.Duration)
	defer cancel()

	s.stats.Scans.Add(1)
	s.graph.SetBlock(head.Number)

	now := time.Now()
	snap := s.graph.Snapshot(now)
	if snap.Len() == 0 {
		if newest := s.graph.NewestUpdate(); !newest.IsZero() {
			err := &domain.StaleDataError{Age: now.Sub(newest), MaxAge: s.cfg.FreshnessWindow.Duration}
			s.logger.Warn("scan skipped", slog.Uint64("block", head.Number), slog.String("error", err.Error()))
		} else {
			s.logger.Debug("empty snapshot, nothing to scan", slog.Uint64("block", head.Number))
		}
		return
	}

	gasPrice, err := s.gas.SuggestGasPrice(ctx)
	if err != nil {
		s.logger.Warn("scan skipped, gas price unavailable", slog.String("error", err.Error()))
		return
	}

	for _, base := range s.baseTokens {
		if ctx.Err() != nil {
			return
		}
		s.scanBase(ctx, snap, base, head.Number, gasPrice)
	}
}

func (s *Scanner) scanBase(ctx context.Context, snap *graph.Snapshot, base common.Address, block uint64, gasPrice *big.Int) {
	candidates := s.finder.FindProfitableCycles(snap, pathfind.Params{
		Base:        base,
		AmountIn:    s.cfg.BorrowAmount(),
		MaxHops:     s.cfg.MaxHops,
		MinProfit:   s.cfg.MinProfit(),
		GasPriceWei: gasPrice,
		SlippageBps: s.cfg.SlippageBps,
		MaxResults:  s.cfg.MaxCandidates,
	})
	if len(candidates) == 0 {
		return
	}
	s.stats.Candidates.Add(uint64(len(candidates)))

	for _, cand := range candidates {
		if ctx.Err() != nil {
			return
		}
		cand.Block = block

		if s.alerts.shouldAlert(cand.Path()) {
			s.notify(ctx, domain.EventCandidateFound, "Candidate found",
				fmt.Sprintf("%s net=%s wei block=%d", cand.Path(), cand.NetProfit, block))
		}

		verdict, err := s.validator.Validate(ctx, cand)
		if err != nil {
			s.logger.Warn("validation errored", slog.String("error", err.Error()))
			continue
		}
		if !verdict.Accepted {
			s.stats.Rejected.Add(1)
			s.notify(ctx, domain.EventRejected, "Candidate rejected",
				fmt.Sprintf("%s [%s] %s", cand.Path(), verdict.Code, verdict.Detail))
			continue
		}
		s.stats.Accepted.Add(1)

		if s.executor == nil {
			s.logger.Info("candidate accepted (monitor mode)",
				slog.String("path", cand.Path()),
				slog.String("net_profit", cand.NetProfit.String()),
				slog.Uint64("block", block),
			)
			continue
		}
		s.dispatch(ctx, cand)
	}
}

// dispatch hands one candidate to the coordinator. Execution outlives the
// scan: a superseding block invalidates searching, not an attempt already in
// flight, which the coordinator's own preflight protects.
func (s *Scanner) dispatch(ctx context.Context, cand domain.CycleCandidate) {
	s.stats.Dispatched.Add(1)
	execCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.executor.Execute(execCtx, cand); err != nil {
			s.logger.Error("execution failed",
				slog.String("path", cand.Path()),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (s *Scanner) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.Debug("notification failed", slog.String("error", err.Error()))
	}
}
