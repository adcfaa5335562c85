package puppet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-token-lab/bankrun/internal/anchor"
	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/provider"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

func newTestClient(t *testing.T) (*Client, *bank.Context) {
	t.Helper()
	bctx, err := bank.Start(bank.GenesisConfig{Programs: Programs()})
	require.NoError(t, err)
	p := provider.NewBankProvider(bctx.Bank, solana.NewKeypairWallet(bctx.Payer), provider.Options{})
	return NewClient(p), bctx
}

func TestPuppet_InitializeAndSetData(t *testing.T) {
	client, bctx := newTestClient(t)
	ctx := context.Background()
	puppet := solana.MustNewKeypair()

	_, err := client.Initialize(ctx, puppet)
	require.NoError(t, err)

	acc, err := bctx.Bank.GetAccount(ctx, puppet.PublicKey())
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.True(t, acc.Owner.Equals(ProgramID))
	assert.Len(t, acc.Data, DataAccountSize)
	assert.Equal(t, bctx.Bank.Rent().MinimumBalance(DataAccountSize), acc.Lamports)

	got, err := client.FetchData(ctx, puppet.PublicKey())
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = client.SetData(ctx, puppet.PublicKey(), 42)
	require.NoError(t, err)
	got, err = client.FetchData(ctx, puppet.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)
}

func TestPuppet_InitializeTwiceFails(t *testing.T) {
	client, bctx := newTestClient(t)
	ctx := context.Background()
	puppet := solana.MustNewKeypair()

	_, err := client.Initialize(ctx, puppet)
	require.NoError(t, err)

	bctx.Bank.AdvanceSlot()
	_, err = client.Initialize(ctx, puppet)
	require.ErrorIs(t, err, bank.ErrAccountAlreadyInUse)

	var txErr *bank.TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.NotEmpty(t, txErr.Logs)
}

func TestPuppet_SetDataOnForeignAccount(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.SetData(context.Background(), solana.MustNewKeypair().PublicKey(), 1)
	require.ErrorIs(t, err, anchor.ErrAccountOwnedByWrongProgram)
}

func TestPuppet_FetchMissingAccount(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.FetchData(context.Background(), solana.MustNewKeypair().PublicKey())
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestPuppet_SetDataVersioned(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	puppet := solana.MustNewKeypair()

	_, err := client.Initialize(ctx, puppet)
	require.NoError(t, err)
	_, err = client.SetDataVersioned(ctx, puppet.PublicKey(), 777)
	require.NoError(t, err)

	got, err := client.FetchData(ctx, puppet.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(777), got)
}

func TestPuppetMaster_PullStrings(t *testing.T) {
	client, bctx := newTestClient(t)
	ctx := context.Background()
	puppet := solana.MustNewKeypair()

	var logs []string
	bctx.Bank.AddSink(bank.SinkFunc(func(_ context.Context, meta *solana.TransactionMeta) {
		logs = append(logs, meta.LogMessages...)
	}))

	_, err := client.Initialize(ctx, puppet)
	require.NoError(t, err)
	_, err = client.PullStrings(ctx, puppet.PublicKey(), 31337)
	require.NoError(t, err)

	got, err := client.FetchData(ctx, puppet.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), got)
	assert.Contains(t, logs, "Program "+ProgramID.String()+" invoke [2]")
}
