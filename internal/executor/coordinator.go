// Package executor coordinates atomic trade execution: one state machine per
// attempt, a per-base-token lock so concurrent candidates never contend for
// the same principal, preflight re-quotes before every submission, and
// bounded retries with gas bumps. Every attempt reaches exactly one terminal
// state and is journaled along the way.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/cycleforge/flasharb/internal/config"
	"github.com/cycleforge/flasharb/internal/domain"
)

const bpsDenominator = 10_000

// Submitter builds, signs, and submits the borrow-swap-repay bundle for a
// candidate, and waits for inclusion. The chain-backed implementation wraps
// the connection manager and the external wallet collaborator.
type Submitter interface {
	// SuggestGasPrice returns the current gas price estimate in wei.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// Submit sends the bundle and returns the transaction hash.
	Submit(ctx context.Context, cand domain.CycleCandidate, gasPriceWei *big.Int) (common.Hash, error)
	// Wait blocks until the transaction is mined and returns the realized
	// profit, or an OnChainRevertError when it was included but reverted.
	Wait(ctx context.Context, txHash common.Hash) (*big.Int, error)
}

// Requoter re-prices a candidate against the freshest market view. It returns
// the re-quoted net profit or a PreflightMismatchError when the opportunity
// no longer clears the threshold.
type Requoter interface {
	Requote(ctx context.Context, cand domain.CycleCandidate) (*big.Int, error)
}

// Notifier publishes outbound events. The notify package implements it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Coordinator owns attempt lifecycles. At most one attempt is in flight per
// base token; what happens to candidates arriving while the base is busy is
// decided by the configured queue policy.
type Coordinator struct {
	cfg      config.ExecutionConfig
	locks    domain.LockManager
	store    domain.AttemptStore
	requoter Requoter
	submit   Submitter
	notifier Notifier
	logger   *slog.Logger

	mu     sync.Mutex
	queued map[common.Address][]domain.CycleCandidate
}

// NewCoordinator wires the coordinator's collaborators. store and notifier
// may be nil in monitor mode.
func NewCoordinator(cfg config.ExecutionConfig, locks domain.LockManager, store domain.AttemptStore, requoter Requoter, submit Submitter, notifier Notifier, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		locks:    locks,
		store:    store,
		requoter: requoter,
		submit:   submit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "executor")),
		queued:   make(map[common.Address][]domain.CycleCandidate),
	}
}

// Execute runs one candidate to a terminal state. When the base token is
// already busy the candidate is queued or dropped per policy and Execute
// returns immediately. The returned attempt is nil for queued/dropped
// candidates.
func (c *Coordinator) Execute(ctx context.Context, cand domain.CycleCandidate) (*domain.ExecutionAttempt, error) {
	unlock, err := c.locks.Acquire(ctx, lockKey(cand.Base), c.cfg.LockTTL.Duration)
	if errors.Is(err, domain.ErrLockHeld) {
		c.deferCandidate(cand)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("executor: acquire base lock: %w", err)
	}

	attempt := c.run(ctx, cand)
	unlock()

	// The base token is free again; a queued candidate may proceed.
	if next, ok := c.dequeue(cand.Base); ok && ctx.Err() == nil {
		go func() {
			if _, err := c.Execute(ctx, next); err != nil {
				c.logger.Error("queued candidate failed", slog.String("error", err.Error()))
			}
		}()
	}
	return attempt, nil
}

// run drives a single attempt through the state machine.
func (c *Coordinator) run(ctx context.Context, cand domain.CycleCandidate) *domain.ExecutionAttempt {
	attempt := &domain.ExecutionAttempt{
		ID:        uuid.New().String(),
		Candidate: cand,
		Borrowed:  cand.AmountIn,
		State:     domain.AttemptPending,
		StartedAt: time.Now().UTC(),
	}
	log := c.logger.With(
		slog.String("attempt_id", attempt.ID),
		slog.String("path", cand.Path()),
	)
	c.journalCreate(ctx, attempt, log)

	preflightFails := 0
	bumps := 0

	for attempt.Attempts < c.cfg.MaxAttempts {
		if ctx.Err() != nil && attempt.State != domain.AttemptSubmitted {
			c.finish(ctx, attempt, domain.AttemptAbandoned, "shutdown", log)
			return attempt
		}

		// Preflight: re-quote against the freshest snapshot before every
		// submission, first and retried alike.
		if err := c.preflight(ctx, cand); err != nil {
			preflightFails++
			var mismatch *domain.PreflightMismatchError
			if !errors.As(err, &mismatch) {
				// Infrastructure failure, not a price verdict.
				log.Warn("preflight errored", slog.String("error", err.Error()))
			}
			if attempt.State == domain.AttemptPending {
				// Never submitted: the candidate was stale on arrival.
				attempt.LastError = err.Error()
				c.finish(ctx, attempt, domain.AttemptRejectedPreflight, err.Error(), log)
				c.notify(ctx, domain.EventRejected, "Preflight rejected", cand.Path()+": "+err.Error())
				return attempt
			}
			if preflightFails >= 2 {
				attempt.LastError = err.Error()
				c.finish(ctx, attempt, domain.AttemptAbandoned, "two consecutive preflight failures", log)
				return attempt
			}
			if !c.backoff(ctx) {
				c.finish(ctx, attempt, domain.AttemptAbandoned, "shutdown", log)
				return attempt
			}
			continue
		}
		preflightFails = 0

		attempt.Attempts++

		gasPrice, err := c.gasPrice(ctx, bumps)
		if err != nil {
			attempt.LastError = err.Error()
			log.Warn("gas price unavailable", slog.String("error", err.Error()))
			if !c.retry(ctx, attempt, err.Error(), log) {
				return attempt
			}
			continue
		}
		attempt.GasPriceWei = gasPrice

		// Submission and confirmation are never cancelled mid-flight: once a
		// transaction may be on the wire, we find out what happened to it.
		submitCtx := context.WithoutCancel(ctx)

		txHash, err := c.submit.Submit(submitCtx, cand, gasPrice)
		if err != nil {
			attempt.LastError = err.Error()
			if transient(err) {
				log.Warn("submission failed, transient", slog.String("error", err.Error()))
				if !c.retry(ctx, attempt, err.Error(), log) {
					return attempt
				}
				continue
			}
			log.Error("submission rejected", slog.String("error", err.Error()))
			c.transition(ctx, attempt, domain.AttemptSubmitted, "", log) // was on the wire
			c.transition(ctx, attempt, domain.AttemptFailed, err.Error(), log)
			c.finish(ctx, attempt, domain.AttemptAbandoned, err.Error(), log)
			return attempt
		}

		attempt.TxHash = txHash
		c.transition(ctx, attempt, domain.AttemptSubmitted, "", log)
		c.notify(ctx, domain.EventSubmitted, "Trade submitted",
			fmt.Sprintf("%s tx=%s gas=%s", cand.Path(), txHash.Hex(), gasPrice))

		waitCtx, cancel := context.WithTimeout(submitCtx, c.cfg.ConfirmTimeout.Duration)
		profit, err := c.submit.Wait(waitCtx, txHash)
		cancel()

		switch {
		case err == nil:
			if profit == nil {
				// Submitter could not extract a realized figure; report the
				// detection-time estimate.
				profit = cand.NetProfit
			}
			attempt.Profit = profit
			c.finish(ctx, attempt, domain.AttemptConfirmed, "", log)
			c.notify(ctx, domain.EventConfirmed, "Trade confirmed",
				fmt.Sprintf("%s profit=%s wei tx=%s", cand.Path(), profit, txHash.Hex()))
			return attempt

		case isRevert(err):
			// Included but reverted: conditions changed under us. Never retry
			// with the same parameters.
			attempt.LastError = "on-chain revert"
			c.transition(ctx, attempt, domain.AttemptFailed, "on-chain revert", log)
			c.finish(ctx, attempt, domain.AttemptAbandoned, "on-chain revert", log)
			return attempt

		default:
			// Confirmation timeout or endpoint loss: the tx may still land.
			// Retrying bumps the gas price so a replacement can supersede it.
			attempt.LastError = err.Error()
			bumps++
			log.Warn("confirmation not observed", slog.String("error", err.Error()))
			if !c.retry(ctx, attempt, err.Error(), log) {
				return attempt
			}
		}
	}

	c.finish(ctx, attempt, domain.AttemptAbandoned, "attempt budget exhausted", log)
	return attempt
}

// retry moves Submitted→Failed→Retried (or Pending stays Pending for
// pre-submission failures), honoring the attempt budget and backoff. Returns
// false when the attempt just reached a terminal state.
func (c *Coordinator) retry(ctx context.Context, attempt *domain.ExecutionAttempt, reason string, log *slog.Logger) bool {
	if attempt.State == domain.AttemptSubmitted {
		c.transition(ctx, attempt, domain.AttemptFailed, reason, log)
	}
	if attempt.Attempts >= c.cfg.MaxAttempts {
		c.finish(ctx, attempt, domain.AttemptAbandoned, "attempt budget exhausted", log)
		return false
	}
	if attempt.State == domain.AttemptFailed {
		c.transition(ctx, attempt, domain.AttemptRetried, reason, log)
	}
	if !c.backoff(ctx) {
		c.finish(ctx, attempt, domain.AttemptAbandoned, "shutdown", log)
		return false
	}
	return true
}

// preflight checks the current gas price against the configured ceiling and
// re-quotes the candidate, both with an explicit timeout. A spiked gas market
// is a preflight verdict: submitting clamped at the ceiling would go out
// underpriced and burn the retry budget waiting on a tx that cannot win.
func (c *Coordinator) preflight(ctx context.Context, cand domain.CycleCandidate) error {
	pfCtx, cancel := context.WithTimeout(ctx, c.cfg.PreflightTimeout.Duration)
	defer cancel()

	suggested, err := c.submit.SuggestGasPrice(pfCtx)
	if err != nil {
		return err
	}
	if ceiling := c.gasCeiling(); suggested.Cmp(ceiling) > 0 {
		return &domain.PreflightMismatchError{
			Reason: fmt.Sprintf("gas price %s wei above ceiling %s wei", suggested, ceiling),
		}
	}

	_, err = c.requoter.Requote(pfCtx, cand)
	return err
}

// gasPrice returns the suggested price bumped per retry, clamped at the
// configured ceiling. Preflight already rejected suggestions above the
// ceiling; the clamp only limits how far retry bumps can climb.
func (c *Coordinator) gasPrice(ctx context.Context, bumps int) (*big.Int, error) {
	base, err := c.submit.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	price := new(big.Int).Set(base)
	for i := 0; i < bumps; i++ {
		price.Mul(price, big.NewInt(bpsDenominator+c.cfg.GasBumpBps))
		price.Div(price, big.NewInt(bpsDenominator))
	}
	if ceiling := c.gasCeiling(); price.Cmp(ceiling) > 0 {
		price.Set(ceiling)
	}
	return price, nil
}

func (c *Coordinator) gasCeiling() *big.Int {
	return new(big.Int).Mul(big.NewInt(c.cfg.MaxGasPriceGwei), big.NewInt(1_000_000_000))
}

func (c *Coordinator) backoff(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.cfg.RetryBackoff.Duration):
		return true
	}
}

// transition applies a state change, enforcing the machine's legal moves, and
// journals it.
func (c *Coordinator) transition(ctx context.Context, attempt *domain.ExecutionAttempt, next domain.AttemptState, reason string, log *slog.Logger) {
	if !attempt.State.CanTransition(next) {
		log.Error("illegal state transition",
			slog.String("from", string(attempt.State)),
			slog.String("to", string(next)),
		)
		return
	}
	attempt.State = next
	if c.store != nil {
		if err := c.store.UpdateState(ctx, attempt.ID, next, reason); err != nil {
			log.Warn("attempt journal update failed", slog.String("error", err.Error()))
		}
	}
	log.Info("attempt state", slog.String("state", string(next)), slog.String("reason", reason))
}

// finish moves the attempt to a terminal state and journals the final record.
func (c *Coordinator) finish(ctx context.Context, attempt *domain.ExecutionAttempt, terminal domain.AttemptState, reason string, log *slog.Logger) {
	c.transition(ctx, attempt, terminal, reason, log)
	now := time.Now().UTC()
	attempt.CompletedAt = &now
	if c.store != nil {
		if err := c.store.Finalize(context.WithoutCancel(ctx), *attempt); err != nil {
			log.Warn("attempt finalize failed", slog.String("error", err.Error()))
		}
	}
	if terminal == domain.AttemptAbandoned {
		c.notify(ctx, domain.EventAbandoned, "Trade abandoned",
			attempt.Candidate.Path()+": "+reason)
	}
}

// deferCandidate applies the queue policy for a busy base token.
func (c *Coordinator) deferCandidate(cand domain.CycleCandidate) {
	if c.cfg.QueuePolicy != "queue" {
		c.logger.Debug("base token busy, dropping candidate",
			slog.String("base", cand.Base.Hex()),
			slog.String("path", cand.Path()),
		)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queued[cand.Base]
	if len(q) >= c.cfg.QueueSize {
		c.logger.Warn("base token queue full, dropping candidate",
			slog.String("base", cand.Base.Hex()))
		return
	}
	c.queued[cand.Base] = append(q, cand)
}

func (c *Coordinator) dequeue(base common.Address) (domain.CycleCandidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queued[base]
	if len(q) == 0 {
		return domain.CycleCandidate{}, false
	}
	next := q[0]
	c.queued[base] = q[1:]
	return next, true
}

func (c *Coordinator) journalCreate(ctx context.Context, attempt *domain.ExecutionAttempt, log *slog.Logger) {
	if c.store == nil {
		return
	}
	if err := c.store.Create(ctx, *attempt); err != nil {
		log.Warn("attempt journal create failed", slog.String("error", err.Error()))
	}
}

func (c *Coordinator) notify(ctx context.Context, event, title, message string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(context.WithoutCancel(ctx), event, title, message); err != nil {
		c.logger.Debug("notification failed", slog.String("error", err.Error()))
	}
}

func lockKey(base common.Address) string {
	return "exec:base:" + base.Hex()
}

// transient reports whether a submission error is worth retrying.
func transient(err error) bool {
	var sub *domain.SubmissionError
	if errors.As(err, &sub) {
		return sub.Transient
	}
	var net *domain.NetworkError
	return errors.As(err, &net)
}

func isRevert(err error) bool {
	var revert *domain.OnChainRevertError
	return errors.As(err, &revert)
}
