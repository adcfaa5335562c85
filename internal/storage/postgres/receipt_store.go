package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/storage"
)

// ReceiptStore implements storage.ReceiptStore using PostgreSQL.
type ReceiptStore struct {
	pool *Pool
}

// NewReceiptStore creates a new ReceiptStore.
func NewReceiptStore(pool *Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

// Insert adds a receipt. Returns ErrDuplicateKey if the signature exists.
func (s *ReceiptStore) Insert(ctx context.Context, r *domain.TransactionReceipt) error {
	if r == nil || r.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transaction_receipts (
			signature, slot, success, err, fee, compute_units,
			account_keys, log_messages, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		r.Signature,
		r.Slot,
		r.Success,
		r.Err,
		r.Fee,
		r.ComputeUnits,
		nonNil(r.AccountKeys),
		nonNil(r.LogMessages),
		r.ProcessedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction receipt: %w", err)
	}
	return nil
}

// GetBySignature retrieves a receipt. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetBySignature(ctx context.Context, signature string) (*domain.TransactionReceipt, error) {
	query := `
		SELECT signature, slot, success, err, fee, compute_units,
		       account_keys, log_messages, processed_at
		FROM transaction_receipts
		WHERE signature = $1
	`

	r, err := scanReceipt(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction receipt: %w", err)
	}
	return r, nil
}

// GetBySlotRange retrieves receipts within [start, end] (inclusive), ordered by slot ASC.
func (s *ReceiptStore) GetBySlotRange(ctx context.Context, start, end int64) ([]*domain.TransactionReceipt, error) {
	query := `
		SELECT signature, slot, success, err, fee, compute_units,
		       account_keys, log_messages, processed_at
		FROM transaction_receipts
		WHERE slot >= $1 AND slot <= $2
		ORDER BY slot ASC, processed_at ASC, signature ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query transaction receipts: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransactionReceipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction receipt: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction receipts: %w", err)
	}
	return result, nil
}

// scanReceipt scans a single row into TransactionReceipt.
func scanReceipt(row pgx.Row) (*domain.TransactionReceipt, error) {
	var r domain.TransactionReceipt

	err := row.Scan(
		&r.Signature,
		&r.Slot,
		&r.Success,
		&r.Err,
		&r.Fee,
		&r.ComputeUnits,
		&r.AccountKeys,
		&r.LogMessages,
		&r.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
