package provider

import (
	"errors"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

var (
	// ErrNotFound is returned when the ledger has no record of an account.
	// Absence is never reported as a zeroed account.
	ErrNotFound = errors.New("account not found")

	// ErrNoBlockhash is returned when the ledger has not produced a blockhash yet.
	ErrNoBlockhash = errors.New("no blockhash available")

	// ErrMissingFeePayerSignature is returned when a legacy transaction has no
	// fee payer signature after every signer has signed.
	ErrMissingFeePayerSignature = errors.New("missing fee payer signature")

	// ErrNotImplemented is returned by provider operations the backend does not support.
	ErrNotImplemented = errors.New("not implemented")

	// ErrTransactionFailed is returned when a submitted transaction executed with an error.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrConfirmTimeout is returned when a transaction is not confirmed in time.
	ErrConfirmTimeout = errors.New("confirmation timeout")

	// ErrUnknownSigner is returned when a signer is not required by the transaction.
	ErrUnknownSigner = solana.ErrUnknownSigner
)
