package recorder

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/solana"
	"github.com/solana-token-lab/bankrun/internal/storage"
	"github.com/solana-token-lab/bankrun/internal/storage/memory"
)

type failingStore struct {
	storage.ReceiptStore
}

func (failingStore) Insert(context.Context, *domain.TransactionReceipt) error {
	return errors.New("connection refused")
}

func transfer(t *testing.T, sess *bank.Context, to solana.PublicKey, lamports uint64) *solana.LegacyTransaction {
	t.Helper()
	tx := solana.NewLegacyTransaction(bank.TransferInstruction(sess.Payer.PublicKey(), to, lamports))
	payer := sess.Payer.PublicKey()
	tx.FeePayer = &payer
	tx.RecentBlockhash = sess.LastBlockhash
	require.NoError(t, tx.PartialSign(sess.Payer))
	return tx
}

func TestRecorder_PersistsSuccessAndFailure(t *testing.T) {
	store := memory.NewReceiptStore()
	var logs bytes.Buffer
	now := time.UnixMilli(1704067200000)

	rec := New(Options{
		Stores: []Store{{Name: "memory", ReceiptStore: store}},
		Clock:  func() time.Time { return now },
		Logger: log.New(&logs, "", 0),
	})
	sess, err := bank.Start(bank.GenesisConfig{Options: bank.Options{Sinks: []bank.ReceiptSink{rec}}})
	require.NoError(t, err)
	ctx := context.Background()

	recipient := solana.MustNewKeypair().PublicKey()
	ok := transfer(t, sess, recipient, 1_000_000)
	meta, err := sess.Bank.ProcessTransaction(ctx, ok)
	require.NoError(t, err)

	got, err := store.GetBySignature(ctx, meta.Signature)
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Nil(t, got.Err)
	assert.Equal(t, int64(meta.Slot), got.Slot)
	assert.Equal(t, int64(bank.DefaultLamportsPerSignature), got.Fee)
	assert.Equal(t, now.UnixMilli(), got.ProcessedAt)
	assert.Equal(t, []string{
		sess.Payer.PublicKey().String(),
		recipient.String(),
		solana.SystemProgramID.String(),
	}, got.AccountKeys)
	assert.NotEmpty(t, got.LogMessages)

	// Overdraw to force an execution failure that still produces a receipt.
	failed := transfer(t, sess, recipient, bank.DefaultPayerLamports*2)
	_, err = sess.Bank.ProcessTransaction(ctx, failed)
	var txErr *bank.TransactionError
	require.ErrorAs(t, err, &txErr)

	got, err = store.GetBySignature(ctx, txErr.Signature)
	require.NoError(t, err)
	assert.False(t, got.Success)
	require.NotNil(t, got.Err)
	assert.Contains(t, *got.Err, "insufficient")

	all, err := store.GetBySlotRange(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Empty(t, logs.String())
}

func TestRecorder_StoreFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	good := memory.NewReceiptStore()
	rec := New(Options{
		Stores: []Store{
			{Name: "postgres", ReceiptStore: failingStore{}},
			{Name: "memory", ReceiptStore: good},
		},
		Logger: log.New(&logs, "", 0),
	})

	meta := &solana.TransactionMeta{
		Signature:   "sig",
		Slot:        3,
		AccountKeys: []solana.PublicKey{solana.SystemProgramID},
	}
	rec.OnTransaction(context.Background(), meta)
	rec.OnTransaction(context.Background(), meta)

	_, err := good.GetBySignature(context.Background(), "sig")
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "store receipt sig in postgres: connection refused")
	assert.Contains(t, logs.String(), "memory already has receipt sig")
}

func TestToReceipt(t *testing.T) {
	meta := &solana.TransactionMeta{
		Signature:            "abc",
		Slot:                 5,
		AccountKeys:          []solana.PublicKey{solana.SystemProgramID},
		Fee:                  10000,
		ComputeUnitsConsumed: 150,
		LogMessages:          []string{"Program 11111111111111111111111111111111 success"},
		Err:                  bank.ErrInsufficientFunds,
	}
	r := ToReceipt(meta, time.UnixMilli(42))

	assert.Equal(t, "abc", r.Signature)
	assert.Equal(t, int64(5), r.Slot)
	assert.False(t, r.Success)
	require.NotNil(t, r.Err)
	assert.Equal(t, bank.ErrInsufficientFunds.Error(), *r.Err)
	assert.Equal(t, int64(10000), r.Fee)
	assert.Equal(t, int64(150), r.ComputeUnits)
	assert.Equal(t, int64(42), r.ProcessedAt)

	meta.LogMessages[0] = "mutated"
	assert.NotEqual(t, "mutated", r.LogMessages[0])
}
