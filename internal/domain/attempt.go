package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AttemptState is the lifecycle state of an execution attempt.
type AttemptState string

const (
	AttemptPending           AttemptState = "pending"
	AttemptSubmitted         AttemptState = "submitted"
	AttemptConfirmed         AttemptState = "confirmed"
	AttemptFailed            AttemptState = "failed"
	AttemptRetried           AttemptState = "retried"
	AttemptAbandoned         AttemptState = "abandoned"
	AttemptRejectedPreflight AttemptState = "rejected_preflight"
)

// Terminal reports whether the state admits no further transitions.
func (s AttemptState) Terminal() bool {
	switch s {
	case AttemptConfirmed, AttemptAbandoned, AttemptRejectedPreflight:
		return true
	}
	return false
}

// validTransitions encodes the attempt state machine. Failed may move to
// Retried (another submission follows) or Abandoned (attempts exhausted).
var validTransitions = map[AttemptState][]AttemptState{
	AttemptPending:   {AttemptSubmitted, AttemptRejectedPreflight, AttemptAbandoned},
	AttemptSubmitted: {AttemptConfirmed, AttemptFailed},
	AttemptFailed:    {AttemptRetried, AttemptAbandoned},
	AttemptRetried:   {AttemptSubmitted, AttemptRejectedPreflight, AttemptAbandoned},
}

// CanTransition reports whether moving from s to next is legal.
func (s AttemptState) CanTransition(next AttemptState) bool {
	for _, t := range validTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ExecutionAttempt tracks one in-flight atomic trade. It is owned exclusively
// by the execution coordinator and reaches exactly one terminal state:
// Confirmed, Abandoned, or RejectedPreflight.
type ExecutionAttempt struct {
	ID          string
	Candidate   CycleCandidate
	Borrowed    *big.Int // flash-loan principal in base token smallest units
	State       AttemptState
	Attempts    int
	GasPriceWei *big.Int
	TxHash      common.Hash
	LastError   string
	Profit      *big.Int // realized profit, set on Confirmed
	StartedAt   time.Time
	CompletedAt *time.Time
}
