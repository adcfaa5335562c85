package solana

import "context"

// RPCClient defines the subset of the Solana JSON-RPC API used by the
// network-backed provider.
type RPCClient interface {
	// GetAccountInfo retrieves an account. Value is nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey PublicKey, commitment Commitment) (*AccountInfoResult, error)

	// GetLatestBlockhash retrieves the most recent blockhash.
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (*LatestBlockhash, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context, commitment Commitment) (uint64, error)

	// SendTransaction submits a signed transaction and returns its signature.
	SendTransaction(ctx context.Context, tx Transaction, opts *SendOptions) (string, error)

	// SimulateTransaction executes tx without committing it.
	SimulateTransaction(ctx context.Context, tx Transaction, commitment Commitment) (*SimulationResult, error)

	// GetSignatureStatuses returns one entry per signature; nil entries are unknown.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)
}

// SendOptions configures sendTransaction.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
	MaxRetries          *uint
}
