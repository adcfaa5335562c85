package puppet

import (
	"context"

	"github.com/solana-token-lab/bankrun/internal/anchor"
	"github.com/solana-token-lab/bankrun/internal/provider"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

// Client calls the puppet programs through a provider.
type Client struct {
	puppet *anchor.Program
	master *anchor.Program
}

// NewClient creates a client that submits through p.
func NewClient(p provider.SubmitOnlyProvider) *Client {
	return &Client{
		puppet: anchor.NewProgram(IDL, ProgramID, p),
		master: anchor.NewProgram(MasterIDL, MasterProgramID, p),
	}
}

// Program returns the underlying puppet program client.
func (c *Client) Program() *anchor.Program {
	return c.puppet
}

// Initialize creates the puppet account, paid for by the wallet.
func (c *Client) Initialize(ctx context.Context, puppet solana.Signer) (string, error) {
	return c.puppet.Method("initialize").
		Accounts(map[string]solana.PublicKey{"puppet": puppet.PublicKey()}).
		Signers(puppet).
		RPC(ctx, nil)
}

// SetData stores value in the puppet account.
func (c *Client) SetData(ctx context.Context, puppet solana.PublicKey, value uint64) (string, error) {
	return c.puppet.Method("setData", value).
		Accounts(map[string]solana.PublicKey{"puppet": puppet}).
		RPC(ctx, nil)
}

// SetDataVersioned is SetData using a v0 transaction.
func (c *Client) SetDataVersioned(ctx context.Context, puppet solana.PublicKey, value uint64) (string, error) {
	return c.puppet.Method("setData", value).
		Accounts(map[string]solana.PublicKey{"puppet": puppet}).
		VersionedRPC(ctx, nil)
}

// PullStrings sets the puppet's value through the puppet-master program.
func (c *Client) PullStrings(ctx context.Context, puppet solana.PublicKey, value uint64) (string, error) {
	return c.master.Method("pullStrings", value).
		Accounts(map[string]solana.PublicKey{"puppet": puppet}).
		RPC(ctx, nil)
}

// FetchData reads and decodes the puppet account.
func (c *Client) FetchData(ctx context.Context, puppet solana.PublicKey) (uint64, error) {
	var data Data
	if err := c.puppet.FetchAccount(ctx, DataAccountName, puppet, &data); err != nil {
		return 0, err
	}
	return data.Data, nil
}
