package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/storage"
)

func TestAccountFixtureStore_InsertAndGet(t *testing.T) {
	store := NewAccountFixtureStore()
	ctx := context.Background()

	f := &domain.AccountFixture{
		Address:  "addr2",
		Label:    "vault",
		Lamports: 1_000_000,
		Owner:    "11111111111111111111111111111111",
		Data:     []byte{1, 2, 3},
	}
	if err := store.Insert(ctx, f); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	f.Data[0] = 9

	got, err := store.GetByAddress(ctx, "addr2")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if got.Data[0] != 1 {
		t.Errorf("stored fixture aliases caller data: %v", got.Data)
	}

	if err := store.Insert(ctx, &domain.AccountFixture{Address: "addr1", Owner: "o"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 || all[0].Address != "addr1" || all[1].Address != "addr2" {
		t.Errorf("unexpected GetAll order: %+v", all)
	}
}

func TestAccountFixtureStore_Errors(t *testing.T) {
	store := NewAccountFixtureStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &domain.AccountFixture{Address: "a"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput without owner, got %v", err)
	}
	f := &domain.AccountFixture{Address: "a", Owner: "o"}
	if err := store.Insert(ctx, f); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, f); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByAddress(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
