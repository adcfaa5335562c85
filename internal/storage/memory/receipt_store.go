package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/storage"
)

// ReceiptStore is an in-memory implementation of storage.ReceiptStore.
type ReceiptStore struct {
	mu          sync.RWMutex
	bySignature map[string]*domain.TransactionReceipt
}

// NewReceiptStore creates a new in-memory receipt store.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		bySignature: make(map[string]*domain.TransactionReceipt),
	}
}

// Insert adds a receipt. Returns ErrDuplicateKey if the signature exists.
func (s *ReceiptStore) Insert(_ context.Context, r *domain.TransactionReceipt) error {
	if r == nil || r.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySignature[r.Signature]; exists {
		return storage.ErrDuplicateKey
	}
	s.bySignature[r.Signature] = copyReceipt(r)
	return nil
}

// GetBySignature retrieves a receipt. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetBySignature(_ context.Context, signature string) (*domain.TransactionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.bySignature[signature]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyReceipt(r), nil
}

// GetBySlotRange retrieves receipts within [start, end] (inclusive), ordered by slot ASC.
func (s *ReceiptStore) GetBySlotRange(_ context.Context, start, end int64) ([]*domain.TransactionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransactionReceipt
	for _, r := range s.bySignature {
		if r.Slot >= start && r.Slot <= end {
			result = append(result, copyReceipt(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		if result[i].ProcessedAt != result[j].ProcessedAt {
			return result[i].ProcessedAt < result[j].ProcessedAt
		}
		return result[i].Signature < result[j].Signature
	})
	return result, nil
}

func copyReceipt(r *domain.TransactionReceipt) *domain.TransactionReceipt {
	c := *r
	c.AccountKeys = append([]string(nil), r.AccountKeys...)
	c.LogMessages = append([]string(nil), r.LogMessages...)
	if r.Err != nil {
		e := *r.Err
		c.Err = &e
	}
	return &c
}

var _ storage.ReceiptStore = (*ReceiptStore)(nil)
