package storage

import (
	"context"

	"github.com/solana-token-lab/bankrun/internal/domain"
)

// ReceiptStore provides access to transaction_receipts storage.
type ReceiptStore interface {
	// Insert adds a receipt. Returns ErrDuplicateKey if the signature exists.
	Insert(ctx context.Context, r *domain.TransactionReceipt) error

	// GetBySignature retrieves a receipt. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.TransactionReceipt, error)

	// GetBySlotRange retrieves receipts within [start, end] (inclusive), ordered by slot ASC.
	GetBySlotRange(ctx context.Context, start, end int64) ([]*domain.TransactionReceipt, error)
}

// AccountFixtureStore provides access to account_fixtures storage.
type AccountFixtureStore interface {
	// Insert adds a fixture. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, f *domain.AccountFixture) error

	// GetByAddress retrieves a fixture. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.AccountFixture, error)

	// GetAll retrieves every fixture ordered by address.
	GetAll(ctx context.Context) ([]*domain.AccountFixture, error)
}
