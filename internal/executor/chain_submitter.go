package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/cycleforge/flasharb/internal/chain"
	"github.com/cycleforge/flasharb/internal/domain"
)

// receiptPollInterval is how often Wait polls for a receipt. New blocks
// arrive on the order of seconds, so polling faster only burns rate limits.
const receiptPollInterval = 2 * time.Second

// TxBuilder encodes and signs the borrow-swap-repay bundle for a candidate.
// Wallet custody and contract encoding live with an external collaborator;
// the engine only decides when and at what gas price to submit.
type TxBuilder func(ctx context.Context, cand domain.CycleCandidate, gasPriceWei *big.Int) (*types.Transaction, error)

// ChainSubmitter submits bundles through the connection manager's active
// endpoint. If the endpoint fails over between a submission and its retry,
// the same signed content goes out through the next healthy endpoint.
type ChainSubmitter struct {
	chain *chain.Manager
	build TxBuilder
}

// NewChainSubmitter wires a submitter over the connection manager.
func NewChainSubmitter(mgr *chain.Manager, build TxBuilder) *ChainSubmitter {
	return &ChainSubmitter{chain: mgr, build: build}
}

// SuggestGasPrice implements GasPricer via the active endpoint.
func (s *ChainSubmitter) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return s.chain.SuggestGasPrice(ctx)
}

// Submit implements Submitter.
func (s *ChainSubmitter) Submit(ctx context.Context, cand domain.CycleCandidate, gasPriceWei *big.Int) (common.Hash, error) {
	tx, err := s.build(ctx, cand, gasPriceWei)
	if err != nil {
		return common.Hash{}, &domain.SubmissionError{Transient: false, Err: fmt.Errorf("build bundle: %w", err)}
	}

	endpoint, err := s.chain.SendTransaction(ctx, tx)
	if err != nil {
		var netErr *domain.NetworkError
		if errors.As(err, &netErr) || errors.Is(err, domain.ErrNoActiveEndpoint) {
			return common.Hash{}, &domain.SubmissionError{Endpoint: endpoint, Transient: true, Err: err}
		}
		return common.Hash{}, &domain.SubmissionError{Endpoint: endpoint, Transient: false, Err: err}
	}
	return tx.Hash(), nil
}

// Wait implements Submitter. It polls for the receipt until ctx expires. A
// receipt is the ground truth: status failed means the atomic bundle was
// included but reverted. The realized profit is not derivable from the
// receipt alone, so Wait returns nil and the coordinator reports the
// re-quoted estimate.
func (s *ChainSubmitter) Wait(ctx context.Context, txHash common.Hash) (*big.Int, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.chain.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, &domain.OnChainRevertError{TxHash: txHash.Hex()}
			}
			return nil, nil
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet.
		case errors.Is(err, domain.ErrNoActiveEndpoint):
			// Failover in progress; keep polling, the tx is already out.
		default:
			// Endpoint hiccup. The next poll goes through whichever endpoint
			// is active by then.
		}

		select {
		case <-ctx.Done():
			return nil, &domain.NetworkError{Err: fmt.Errorf("confirmation wait: %w", ctx.Err())}
		case <-ticker.C:
		}
	}
}
