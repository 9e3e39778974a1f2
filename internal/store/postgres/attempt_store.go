package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cycleforge/flasharb/internal/domain"
)

// AttemptStore implements domain.AttemptStore using PostgreSQL.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Create inserts the attempt row and its initial transition.
func (s *AttemptStore) Create(ctx context.Context, attempt domain.ExecutionAttempt) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO execution_attempts (id, base_token, path, hops, borrowed_wei, state, attempts, gas_price_wei, tx_hash, last_error, profit_wei, block_number, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		attempt.ID,
		attempt.Candidate.Base.Hex(),
		attempt.Candidate.Path(),
		len(attempt.Candidate.Hops),
		weiString(attempt.Borrowed),
		string(attempt.State),
		attempt.Attempts,
		weiString(attempt.GasPriceWei),
		txHashString(attempt.TxHash),
		attempt.LastError,
		weiString(attempt.Profit),
		attempt.Candidate.Block,
		attempt.StartedAt,
		attempt.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution_attempt: %w", err)
	}

	if err := insertTransition(ctx, tx, attempt.ID, attempt.State, ""); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateState records a state transition.
func (s *AttemptStore) UpdateState(ctx context.Context, id string, state domain.AttemptState, lastError string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE execution_attempts SET state = $2, last_error = $3 WHERE id = $1`,
		id, string(state), lastError,
	)
	if err != nil {
		return fmt.Errorf("postgres: update execution_attempt %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := insertTransition(ctx, tx, id, state, lastError); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Finalize writes the complete terminal record.
func (s *AttemptStore) Finalize(ctx context.Context, attempt domain.ExecutionAttempt) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE execution_attempts
		SET state = $2, attempts = $3, gas_price_wei = $4, tx_hash = $5,
		    last_error = $6, profit_wei = $7, completed_at = $8
		WHERE id = $1`,
		attempt.ID,
		string(attempt.State),
		attempt.Attempts,
		weiString(attempt.GasPriceWei),
		txHashString(attempt.TxHash),
		attempt.LastError,
		weiString(attempt.Profit),
		attempt.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: finalize execution_attempt %s: %w", attempt.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one attempt. The candidate is reconstructed only as far as
// the journal records it: base token, block, and the rendered path — the live
// hop curves are not persisted.
func (s *AttemptStore) GetByID(ctx context.Context, id string) (domain.ExecutionAttempt, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, base_token, block_number, state, attempts, gas_price_wei::text, tx_hash, last_error, borrowed_wei::text, profit_wei::text, started_at, completed_at
		FROM execution_attempts WHERE id = $1`, id)

	attempt, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionAttempt{}, domain.ErrNotFound
		}
		return domain.ExecutionAttempt{}, fmt.Errorf("postgres: get execution_attempt %s: %w", id, err)
	}
	return attempt, nil
}

// ListRecent returns the most recently started attempts.
func (s *AttemptStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, base_token, block_number, state, attempts, gas_price_wei::text, tx_hash, last_error, borrowed_wei::text, profit_wei::text, started_at, completed_at
		FROM execution_attempts ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution_attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.ExecutionAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution_attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}

func insertTransition(ctx context.Context, tx pgx.Tx, attemptID string, state domain.AttemptState, reason string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO execution_attempt_transitions (attempt_id, state, reason)
		VALUES ($1, $2, $3)`,
		attemptID, string(state), reason,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert attempt transition: %w", err)
	}
	return nil
}

func scanAttempt(row pgx.Row) (domain.ExecutionAttempt, error) {
	var (
		attempt     domain.ExecutionAttempt
		baseToken   string
		state       string
		gasPrice    *string
		txHash      *string
		borrowed    *string
		profit      *string
		completedAt *time.Time
	)
	err := row.Scan(
		&attempt.ID, &baseToken, &attempt.Candidate.Block, &state, &attempt.Attempts,
		&gasPrice, &txHash, &attempt.LastError, &borrowed, &profit,
		&attempt.StartedAt, &completedAt,
	)
	if err != nil {
		return domain.ExecutionAttempt{}, err
	}

	attempt.Candidate.ID = attempt.ID
	attempt.Candidate.Base = common.HexToAddress(baseToken)
	attempt.State = domain.AttemptState(state)
	attempt.GasPriceWei = parseWei(gasPrice)
	attempt.Borrowed = parseWei(borrowed)
	attempt.Profit = parseWei(profit)
	attempt.CompletedAt = completedAt
	if txHash != nil && *txHash != "" {
		attempt.TxHash = common.HexToHash(*txHash)
	}
	return attempt, nil
}

// weiString renders a nullable big.Int for a NUMERIC column.
func weiString(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseWei(s *string) *big.Int {
	if s == nil || *s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil
	}
	return v
}

func txHashString(h common.Hash) *string {
	if h == (common.Hash{}) {
		return nil
	}
	s := h.Hex()
	return &s
}

// Compile-time interface check.
var _ domain.AttemptStore = (*AttemptStore)(nil)
