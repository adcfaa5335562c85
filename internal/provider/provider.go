// Package provider adapts transaction submission to either an in-process
// ledger or a JSON-RPC node behind a single provider contract.
package provider

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/solana-token-lab/bankrun/internal/observability"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

// ConfirmOptions tune submission. Backends without a network ignore them.
type ConfirmOptions struct {
	Commitment          solana.Commitment
	PreflightCommitment solana.Commitment
	SkipPreflight       bool
	MaxRetries          *uint
}

// SendRequest is one entry of a batched send.
type SendRequest struct {
	Tx      solana.Transaction
	Signers []solana.Signer
}

// SubmitOnlyProvider signs and submits transactions and exposes the
// connection used for reads.
type SubmitOnlyProvider interface {
	Connection() AccountAndBlockhashSource
	Wallet() solana.Wallet

	// SendAndConfirm signs tx with signers and then the wallet, submits it and
	// returns the base-58 encoded first signature.
	SendAndConfirm(ctx context.Context, tx solana.Transaction, signers []solana.Signer, opts *ConfirmOptions) (string, error)
}

// FullProvider adds unconfirmed, batched and simulated submission.
type FullProvider interface {
	SubmitOnlyProvider
	Send(ctx context.Context, tx solana.Transaction, signers []solana.Signer, opts *ConfirmOptions) (string, error)
	SendAll(ctx context.Context, reqs []SendRequest, opts *ConfirmOptions) ([]string, error)
	Simulate(ctx context.Context, tx solana.Transaction, signers []solana.Signer, commitment solana.Commitment) (*solana.SimulationResult, error)
}

// Options configures a BankProvider.
type Options struct {
	// Defaults applied when SendAndConfirm is called without options.
	Confirm ConfirmOptions
	Logger  *log.Logger
}

// BankProvider submits transactions straight into an in-process ledger.
// Execution is immediate and final, so there is no confirmation round trip.
type BankProvider struct {
	client LedgerClient
	conn   *BankConnection
	wallet solana.Wallet
	opts   ConfirmOptions
	logger *log.Logger
}

// Compile-time interface check.
var _ SubmitOnlyProvider = (*BankProvider)(nil)

// NewBankProvider creates a provider whose connection and submissions share
// the same ledger session.
func NewBankProvider(client LedgerClient, wallet solana.Wallet, opts Options) *BankProvider {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &BankProvider{
		client: client,
		conn:   NewBankConnection(client, ConnectionOptions{Logger: logger}),
		wallet: wallet,
		opts:   opts.Confirm,
		logger: logger,
	}
}

// Connection returns the account and blockhash source backed by the same ledger.
func (p *BankProvider) Connection() AccountAndBlockhashSource {
	return p.conn
}

// Wallet returns the provider's wallet.
func (p *BankProvider) Wallet() solana.Wallet {
	return p.wallet
}

// SendAndConfirm signs tx, executes it on the ledger and returns its identifier.
// The identifier is computed before submission; a submission error takes
// precedence over it.
func (p *BankProvider) SendAndConfirm(ctx context.Context, tx solana.Transaction, signers []solana.Signer, opts *ConfirmOptions) (string, error) {
	start := time.Now()
	sig, err := p.sendAndConfirm(ctx, tx, signers, opts)
	observability.RecordSendAndConfirm("bank", encodingOf(tx), time.Since(start).Seconds(), err)
	return sig, err
}

func (p *BankProvider) sendAndConfirm(ctx context.Context, tx solana.Transaction, signers []solana.Signer, opts *ConfirmOptions) (string, error) {
	if opts == nil {
		opts = &p.opts
	}
	signed, sig, err := signTransaction(ctx, p.conn, p.wallet, tx, signers, opts.PreflightCommitment)
	if err != nil {
		return "", err
	}

	meta, err := p.client.ProcessTransaction(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("process transaction %s: %w", sig, err)
	}
	p.logger.Printf("transaction %s executed in slot %d (%d CU)", sig, meta.Slot, meta.ComputeUnitsConsumed)
	return sig, nil
}

// signTransaction prepares and signs tx for submission and returns the
// signed transaction with its identifier.
//
// Versioned transactions carry their payer and blockhash in the message, so
// only signatures are added. Legacy transactions default the fee payer to the
// wallet and always receive a freshly fetched blockhash, replacing whatever
// was set before. The wallet signs last in both cases.
func signTransaction(ctx context.Context, src AccountAndBlockhashSource, wallet solana.Wallet, tx solana.Transaction, signers []solana.Signer, commitment solana.Commitment) (solana.Transaction, string, error) {
	switch t := tx.(type) {
	case *solana.VersionedTransaction:
		for _, s := range signers {
			if err := t.Sign(s); err != nil {
				return nil, "", fmt.Errorf("sign versioned transaction: %w", err)
			}
		}
	case *solana.LegacyTransaction:
		if t.FeePayer == nil {
			payer := wallet.PublicKey()
			t.FeePayer = &payer
		}
		bh, err := src.GetLatestBlockhash(ctx, commitment)
		if err != nil {
			return nil, "", err
		}
		t.RecentBlockhash = bh.Blockhash
		for _, s := range signers {
			if err := t.PartialSign(s); err != nil {
				return nil, "", fmt.Errorf("partial sign legacy transaction: %w", err)
			}
		}
	default:
		return nil, "", fmt.Errorf("unsupported transaction type %T", tx)
	}

	signed, err := wallet.SignTransaction(tx)
	if err != nil {
		return nil, "", fmt.Errorf("wallet sign: %w", err)
	}
	sig, err := transactionID(signed)
	if err != nil {
		return nil, "", err
	}
	return signed, sig, nil
}

// transactionID encodes the first signature of tx.
func transactionID(tx solana.Transaction) (string, error) {
	switch t := tx.(type) {
	case *solana.VersionedTransaction:
		if len(t.Signatures) == 0 {
			return "", ErrMissingFeePayerSignature
		}
		return solana.SignatureID(t.Signatures[0]), nil
	case *solana.LegacyTransaction:
		sig := t.Signature()
		if sig == nil {
			return "", ErrMissingFeePayerSignature
		}
		return solana.SignatureID(*sig), nil
	default:
		return "", fmt.Errorf("unsupported transaction type %T", tx)
	}
}

func encodingOf(tx solana.Transaction) string {
	switch tx.(type) {
	case *solana.LegacyTransaction:
		return "legacy"
	case *solana.VersionedTransaction:
		return "versioned"
	default:
		return "unknown"
	}
}

// Unsupported lifts p to a FullProvider whose extra operations always fail
// with ErrNotImplemented.
func Unsupported(p SubmitOnlyProvider) FullProvider {
	return unsupported{p}
}

type unsupported struct {
	SubmitOnlyProvider
}

func (unsupported) Send(context.Context, solana.Transaction, []solana.Signer, *ConfirmOptions) (string, error) {
	return "", fmt.Errorf("send: %w", ErrNotImplemented)
}

func (unsupported) SendAll(context.Context, []SendRequest, *ConfirmOptions) ([]string, error) {
	return nil, fmt.Errorf("sendAll: %w", ErrNotImplemented)
}

func (unsupported) Simulate(context.Context, solana.Transaction, []solana.Signer, solana.Commitment) (*solana.SimulationResult, error) {
	return nil, fmt.Errorf("simulate: %w", ErrNotImplemented)
}
