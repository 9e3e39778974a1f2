package domain

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrLockHeld         = errors.New("lock already held")
	ErrAllEndpointsDown = errors.New("all endpoints unreachable")
	ErrScanSuperseded   = errors.New("scan superseded by newer block")
	ErrNoActiveEndpoint = errors.New("no active endpoint")
)

// NetworkError wraps an endpoint-level failure. Recoverable via failover;
// fatal only when every configured endpoint is exhausted.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StaleDataError indicates a graph snapshot was too old to scan. The scan is
// skipped, not fatal.
type StaleDataError struct {
	Age    time.Duration
	MaxAge time.Duration
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf("stale data: snapshot age %s exceeds %s", e.Age, e.MaxAge)
}

// PreflightMismatchError indicates the pre-submission re-quote no longer
// clears the profit threshold. The attempt moves to RejectedPreflight.
type PreflightMismatchError struct {
	Reason   string
	Expected *big.Int
	Requoted *big.Int
}

func (e *PreflightMismatchError) Error() string {
	if e.Requoted == nil {
		return "preflight mismatch: " + e.Reason
	}
	return fmt.Sprintf("preflight mismatch: %s (expected %s, requoted %s)",
		e.Reason, e.Expected, e.Requoted)
}

// PolicyRejection is the risk validator's structured veto. It is reported,
// never thrown as an uncontrolled failure.
type PolicyRejection struct {
	Code   string // machine-readable check name, e.g. "exposure_cap"
	Detail string
}

func (e *PolicyRejection) Error() string {
	return fmt.Sprintf("policy rejection [%s]: %s", e.Code, e.Detail)
}

// SubmissionError indicates the active endpoint rejected a transaction.
// Transient failures (nonce conflict, underpriced gas, timeout) are retried
// with backoff up to a bounded count.
type SubmissionError struct {
	Endpoint  string
	Transient bool
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission via %s failed: %v", e.Endpoint, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ConfigurationError indicates invalid or missing configuration. Fatal at
// startup; the engine refuses to run.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// OnChainRevertError indicates the transaction was included but the atomic
// borrow-swap-repay sequence reverted. Terminal: no retry with the same
// parameters, since conditions have changed.
type OnChainRevertError struct {
	TxHash string
}

func (e *OnChainRevertError) Error() string {
	return "on-chain revert: " + e.TxHash
}
