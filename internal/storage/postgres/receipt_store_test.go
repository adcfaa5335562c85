package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/storage"
)

func TestReceiptStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReceiptStore(pool)
	ctx := context.Background()

	errMsg := "error processing instruction 0: insufficient funds for instruction"
	r := &domain.TransactionReceipt{
		Signature:    "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
		Slot:         12,
		Success:      false,
		Err:          &errMsg,
		Fee:          10000,
		ComputeUnits: 1650,
		AccountKeys:  []string{"payer", "puppet"},
		LogMessages:  []string{"Program log: Instruction: Initialize"},
		ProcessedAt:  1704067200000,
	}
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.GetBySignature(ctx, r.Signature)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	err = store.Insert(ctx, r)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetBySignature(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReceiptStore_GetBySlotRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReceiptStore(pool)
	ctx := context.Background()

	for _, r := range []*domain.TransactionReceipt{
		{Signature: "c", Slot: 3, Success: true, ProcessedAt: 3},
		{Signature: "a", Slot: 1, Success: true, ProcessedAt: 1},
		{Signature: "b", Slot: 2, Success: true, ProcessedAt: 2},
		{Signature: "z", Slot: 50, Success: true, ProcessedAt: 50},
	} {
		require.NoError(t, store.Insert(ctx, r))
	}

	got, err := store.GetBySlotRange(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Signature)
	assert.Equal(t, "b", got[1].Signature)
	assert.Equal(t, "c", got[2].Signature)
	assert.Empty(t, got[0].AccountKeys)
}
