package clickhouse

import (
	"context"
	"fmt"

	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/storage"
)

// ReceiptStore implements storage.ReceiptStore using ClickHouse.
type ReceiptStore struct {
	conn *Conn
}

// NewReceiptStore creates a new ReceiptStore.
func NewReceiptStore(conn *Conn) *ReceiptStore {
	return &ReceiptStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

// Insert adds a receipt. Returns ErrDuplicateKey if the signature exists.
// ReplacingMergeTree does not reject duplicates, so existence is checked first.
func (s *ReceiptStore) Insert(ctx context.Context, r *domain.TransactionReceipt) error {
	if r == nil || r.Signature == "" || r.Slot < 0 {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, r.Signature)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transaction_receipts (
			signature, slot, success, err, fee, compute_units,
			account_keys, log_messages, processed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	var success uint8
	if r.Success {
		success = 1
	}
	err = batch.Append(
		r.Signature, uint64(r.Slot), success, r.Err,
		uint64(r.Fee), uint64(r.ComputeUnits),
		nonNil(r.AccountKeys), nonNil(r.LogMessages), uint64(r.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySignature retrieves a receipt. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetBySignature(ctx context.Context, signature string) (*domain.TransactionReceipt, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT signature, slot, success, err, fee, compute_units,
		       account_keys, log_messages, processed_at
		FROM transaction_receipts FINAL
		WHERE signature = ?
		LIMIT 1
	`, signature)
	if err != nil {
		return nil, fmt.Errorf("query transaction receipt: %w", err)
	}
	defer rows.Close()

	receipts, err := scanReceipts(rows)
	if err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return nil, storage.ErrNotFound
	}
	return receipts[0], nil
}

// GetBySlotRange retrieves receipts within [start, end] (inclusive), ordered by slot ASC.
func (s *ReceiptStore) GetBySlotRange(ctx context.Context, start, end int64) ([]*domain.TransactionReceipt, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT signature, slot, success, err, fee, compute_units,
		       account_keys, log_messages, processed_at
		FROM transaction_receipts FINAL
		WHERE slot >= ? AND slot <= ?
		ORDER BY slot ASC, processed_at ASC, signature ASC
	`, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query transaction receipts: %w", err)
	}
	defer rows.Close()

	return scanReceipts(rows)
}

func (s *ReceiptStore) exists(ctx context.Context, signature string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM transaction_receipts FINAL
		WHERE signature = ?
	`, signature).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanReceipts(rows chRows) ([]*domain.TransactionReceipt, error) {
	var result []*domain.TransactionReceipt
	for rows.Next() {
		var (
			r                             domain.TransactionReceipt
			slot, fee, units, processedAt uint64
			success                       uint8
		)
		err := rows.Scan(
			&r.Signature, &slot, &success, &r.Err, &fee, &units,
			&r.AccountKeys, &r.LogMessages, &processedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction receipt: %w", err)
		}
		r.Slot = int64(slot)
		r.Success = success == 1
		r.Fee = int64(fee)
		r.ComputeUnits = int64(units)
		r.ProcessedAt = int64(processedAt)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction receipts: %w", err)
	}
	return result, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
