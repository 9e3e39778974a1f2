package domain

import (
	"context"
	"time"
)

// AttemptStore journals execution attempts. Only terminal attempts carry a
// CompletedAt; the coordinator writes once on creation and once per state
// change so operators can audit the full retry history.
type AttemptStore interface {
	Create(ctx context.Context, attempt ExecutionAttempt) error
	UpdateState(ctx context.Context, id string, state AttemptState, lastError string) error
	Finalize(ctx context.Context, attempt ExecutionAttempt) error
	GetByID(ctx context.Context, id string) (ExecutionAttempt, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionAttempt, error)
}

// TokenMetaCache provides fast access to discovery metadata for the risk
// validator. Implementations back it with Redis so several engine instances
// share one discovery refresh.
type TokenMetaCache interface {
	Set(ctx context.Context, meta TokenMeta) error
	Get(ctx context.Context, address string) (TokenMeta, error)
	SetBlacklist(ctx context.Context, addresses []string) error
	IsBlacklisted(ctx context.Context, address string) (bool, error)
}

// LockManager provides the per-base-token execution lock. Acquire returns
// ErrLockHeld when another attempt already owns the base token.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
