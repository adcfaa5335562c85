package provider

import (
	"context"
	"fmt"
	"log"

	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/observability"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

// LedgerClient is the query and submission surface of an in-process ledger.
type LedgerClient interface {
	// GetAccount returns nil when no account is stored at pubkey.
	GetAccount(ctx context.Context, pubkey solana.PublicKey) (*solana.Account, error)
	GetSlot(ctx context.Context) (uint64, error)
	// GetLatestBlockhash returns nil before the first slot is produced.
	GetLatestBlockhash(ctx context.Context) (*solana.LatestBlockhash, error)
	ProcessTransaction(ctx context.Context, tx solana.Transaction) (*solana.TransactionMeta, error)
}

// Compile-time interface check.
var _ LedgerClient = (*bank.Bank)(nil)

// AccountAndBlockhashSource is the read surface client code needs from a connection.
type AccountAndBlockhashSource interface {
	// GetAccountInfoAndContext fails with ErrNotFound when the account does not exist.
	GetAccountInfoAndContext(ctx context.Context, pubkey solana.PublicKey, commitment solana.Commitment) (*solana.AccountInfoResult, error)
	// GetLatestBlockhash fails with ErrNoBlockhash when none has been produced.
	GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.LatestBlockhash, error)
}

// ConnectionOptions configures a BankConnection.
type ConnectionOptions struct {
	Logger *log.Logger
}

// BankConnection answers account and blockhash queries from a LedgerClient.
// Commitment levels are accepted and ignored: the ledger has a single,
// immediately final state.
type BankConnection struct {
	client LedgerClient
	logger *log.Logger
}

// Compile-time interface check.
var _ AccountAndBlockhashSource = (*BankConnection)(nil)

// NewBankConnection creates a connection over client.
func NewBankConnection(client LedgerClient, opts ConnectionOptions) *BankConnection {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &BankConnection{client: client, logger: logger}
}

// GetAccountInfoAndContext returns the account at pubkey together with the
// current slot. The slot is read after the account, so the pair is not a
// consistent snapshot.
func (c *BankConnection) GetAccountInfoAndContext(ctx context.Context, pubkey solana.PublicKey, _ solana.Commitment) (*solana.AccountInfoResult, error) {
	account, err := c.client.GetAccount(ctx, pubkey)
	if err != nil {
		observability.RecordAccountLookup("error")
		return nil, fmt.Errorf("get account %s: %w", pubkey, err)
	}
	if account == nil {
		observability.RecordAccountLookup("not_found")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pubkey)
	}

	slot, err := c.client.GetSlot(ctx)
	if err != nil {
		observability.RecordAccountLookup("error")
		return nil, fmt.Errorf("get slot: %w", err)
	}

	observability.RecordAccountLookup("found")
	return &solana.AccountInfoResult{
		Context: solana.Context{Slot: slot},
		Value:   account.Clone(),
	}, nil
}

// GetAccountInfo is GetAccountInfoAndContext without the context.
func (c *BankConnection) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey, commitment solana.Commitment) (*solana.Account, error) {
	res, err := c.GetAccountInfoAndContext(ctx, pubkey, commitment)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// GetLatestBlockhash returns the ledger's newest blockhash.
func (c *BankConnection) GetLatestBlockhash(ctx context.Context, _ solana.Commitment) (*solana.LatestBlockhash, error) {
	bh, err := c.client.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	if bh == nil {
		return nil, ErrNoBlockhash
	}
	return bh, nil
}

// GetSlot returns the ledger's current slot.
func (c *BankConnection) GetSlot(ctx context.Context, _ solana.Commitment) (uint64, error) {
	return c.client.GetSlot(ctx)
}
