package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/storage"
)

func TestAccountFixtureStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountFixtureStore(pool)
	ctx := context.Background()

	f := &domain.AccountFixture{
		Address:  "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Label:    "market",
		Lamports: 2_039_280,
		Owner:    "11111111111111111111111111111111",
		Data:     []byte{0, 1, 2, 3},
	}
	require.NoError(t, store.Insert(ctx, f))
	require.NoError(t, store.Insert(ctx, &domain.AccountFixture{
		Address: "1nc1nerator11111111111111111111111111111111",
		Owner:   "11111111111111111111111111111111",
	}))

	got, err := store.GetByAddress(ctx, f.Address)
	require.NoError(t, err)
	assert.Equal(t, f.Data, got.Data)
	assert.Equal(t, f.Lamports, got.Lamports)
	assert.Equal(t, "market", got.Label)
	assert.NotZero(t, got.CreatedAt)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1nc1nerator11111111111111111111111111111111", all[0].Address)
	assert.Empty(t, all[0].Data)

	assert.ErrorIs(t, store.Insert(ctx, f), storage.ErrDuplicateKey)
	_, err = store.GetByAddress(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
