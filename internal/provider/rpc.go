package provider

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/solana-token-lab/bankrun/internal/observability"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

// Defaults for RPCOptions.
const (
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultConfirmTimeout = 60 * time.Second
)

// RPCConnection answers account and blockhash queries from a JSON-RPC node.
type RPCConnection struct {
	client solana.RPCClient
}

// Compile-time interface check.
var _ AccountAndBlockhashSource = (*RPCConnection)(nil)

// NewRPCConnection creates a connection over client.
func NewRPCConnection(client solana.RPCClient) *RPCConnection {
	return &RPCConnection{client: client}
}

// GetAccountInfoAndContext returns the account at pubkey with the slot the node read it at.
func (c *RPCConnection) GetAccountInfoAndContext(ctx context.Context, pubkey solana.PublicKey, commitment solana.Commitment) (*solana.AccountInfoResult, error) {
	start := time.Now()
	res, err := c.client.GetAccountInfo(ctx, pubkey, commitment)
	observability.RecordRPCLatency("getAccountInfo", time.Since(start).Seconds())
	if err != nil {
		observability.RecordAccountLookup("error")
		return nil, fmt.Errorf("get account %s: %w", pubkey, err)
	}
	if res.Value == nil {
		observability.RecordAccountLookup("not_found")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pubkey)
	}
	observability.RecordAccountLookup("found")
	return res, nil
}

// GetLatestBlockhash returns the node's newest blockhash.
func (c *RPCConnection) GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.LatestBlockhash, error) {
	start := time.Now()
	bh, err := c.client.GetLatestBlockhash(ctx, commitment)
	observability.RecordRPCLatency("getLatestBlockhash", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	if bh == nil {
		return nil, ErrNoBlockhash
	}
	return bh, nil
}

// RPCOptions configures an RPCProvider.
type RPCOptions struct {
	Confirm        ConfirmOptions
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	Logger         *log.Logger
}

// RPCProvider submits transactions to a JSON-RPC node and confirms them by
// polling signature statuses.
type RPCProvider struct {
	client         solana.RPCClient
	conn           *RPCConnection
	wallet         solana.Wallet
	opts           ConfirmOptions
	pollInterval   time.Duration
	confirmTimeout time.Duration
	logger         *log.Logger
}

// Compile-time interface check.
var _ FullProvider = (*RPCProvider)(nil)

// NewRPCProvider creates a provider over client.
func NewRPCProvider(client solana.RPCClient, wallet solana.Wallet, opts RPCOptions) *RPCProvider {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.Confirm.Commitment == "" {
		opts.Confirm.Commitment = solana.CommitmentConfirmed
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &RPCProvider{
		client:         client,
		conn:           NewRPCConnection(client),
		wallet:         wallet,
		opts:           opts.Confirm,
		pollInterval:   opts.PollInterval,
		confirmTimeout: opts.ConfirmTimeout,
		logger:         logger,
	}
}

// Connection returns the node-backed account and blockhash source.
func (p *RPCProvider) Connection() AccountAndBlockhashSource {
	return p.conn
}

// Wallet returns the provider's wallet.
func (p *RPCProvider) Wallet() solana.Wallet {
	return p.wallet
}

// SendAndConfirm signs and sends tx, then waits until it reaches the
// requested commitment.
func (p *RPCProvider) SendAndConfirm(ctx context.Context, tx solana.Transaction, signers []solana.Signer, opts *ConfirmOptions) (string, error) {
	start := time.Now()
	sig, err := p.sendAndConfirm(ctx, tx, signers, p.options(opts))
	observability.RecordSendAndConfirm("rpc", encodingOf(tx), time.Since(start).Seconds(), err)
	return sig, err
}

func (p *RPCProvider) sendAndConfirm(ctx context.Context, tx solana.Transaction, signers []solana.Signer, opts *ConfirmOptions) (string, error) {
	sig, err := p.send(ctx, tx, signers, opts)
	if err != nil {
		return "", err
	}
	if err := p.confirm(ctx, sig, opts.Commitment); err != nil {
		return "", err
	}
	return sig, nil
}

// Send signs and submits tx without waiting for confirmation.
func (p *RPCProvider) Send(ctx context.Context, tx solana.Transaction, signers []solana.Signer, opts *ConfirmOptions) (string, error) {
	return p.send(ctx, tx, signers, p.options(opts))
}

// SendAll signs and submits each request in order, stopping at the first failure.
func (p *RPCProvider) SendAll(ctx context.Context, reqs []SendRequest, opts *ConfirmOptions) ([]string, error) {
	opts = p.options(opts)
	sigs := make([]string, 0, len(reqs))
	for i, req := range reqs {
		sig, err := p.sendAndConfirm(ctx, req.Tx, req.Signers, opts)
		if err != nil {
			return sigs, fmt.Errorf("transaction %d: %w", i, err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// Simulate signs tx and simulates it on the node without committing.
func (p *RPCProvider) Simulate(ctx context.Context, tx solana.Transaction, signers []solana.Signer, commitment solana.Commitment) (*solana.SimulationResult, error) {
	if commitment == "" {
		commitment = p.opts.Commitment
	}
	signed, _, err := signTransaction(ctx, p.conn, p.wallet, tx, signers, commitment)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := p.client.SimulateTransaction(ctx, signed, commitment)
	observability.RecordRPCLatency("simulateTransaction", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("simulate transaction: %w", err)
	}
	return res, nil
}

func (p *RPCProvider) options(opts *ConfirmOptions) *ConfirmOptions {
	if opts == nil {
		o := p.opts
		return &o
	}
	if opts.Commitment == "" {
		o := *opts
		o.Commitment = p.opts.Commitment
		return &o
	}
	return opts
}

func (p *RPCProvider) send(ctx context.Context, tx solana.Transaction, signers []solana.Signer, opts *ConfirmOptions) (string, error) {
	preflight := opts.PreflightCommitment
	if preflight == "" {
		preflight = opts.Commitment
	}
	signed, sig, err := signTransaction(ctx, p.conn, p.wallet, tx, signers, preflight)
	if err != nil {
		return "", err
	}

	start := time.Now()
	got, err := p.client.SendTransaction(ctx, signed, &solana.SendOptions{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: preflight,
		MaxRetries:          opts.MaxRetries,
	})
	observability.RecordRPCLatency("sendTransaction", time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("send transaction %s: %w", sig, err)
	}
	if got != sig {
		p.logger.Printf("node returned signature %s for transaction %s", got, sig)
	}
	return sig, nil
}

// confirm polls getSignatureStatuses until sig reaches commitment, fails, or
// the confirm timeout elapses.
func (p *RPCProvider) confirm(ctx context.Context, sig string, commitment solana.Commitment) error {
	ctx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		statuses, err := p.client.GetSignatureStatuses(ctx, sig)
		observability.RecordRPCLatency("getSignatureStatuses", time.Since(start).Seconds())
		if err != nil && ctx.Err() == nil {
			p.logger.Printf("get signature status %s: %v", sig, err)
		}
		if err == nil && len(statuses) > 0 && statuses[0] != nil {
			status := statuses[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, status.Err)
			}
			if commitmentReached(status, commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrConfirmTimeout, sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

func commitmentReached(status *solana.SignatureStatus, want solana.Commitment) bool {
	return commitmentRank(status.ConfirmationStatus) >= commitmentRank(want)
}

func commitmentRank(c solana.Commitment) int {
	switch c {
	case solana.CommitmentProcessed:
		return 1
	case solana.CommitmentConfirmed:
		return 2
	case solana.CommitmentFinalized:
		return 3
	default:
		return 0
	}
}
