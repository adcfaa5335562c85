package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/storage"
)

// AccountFixtureStore is an in-memory implementation of storage.AccountFixtureStore.
type AccountFixtureStore struct {
	mu        sync.RWMutex
	byAddress map[string]*domain.AccountFixture
}

// NewAccountFixtureStore creates a new in-memory fixture store.
func NewAccountFixtureStore() *AccountFixtureStore {
	return &AccountFixtureStore{
		byAddress: make(map[string]*domain.AccountFixture),
	}
}

// Insert adds a fixture. Returns ErrDuplicateKey if the address exists.
func (s *AccountFixtureStore) Insert(_ context.Context, f *domain.AccountFixture) error {
	if f == nil || f.Address == "" || f.Owner == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAddress[f.Address]; exists {
		return storage.ErrDuplicateKey
	}
	s.byAddress[f.Address] = copyFixture(f)
	return nil
}

// GetByAddress retrieves a fixture. Returns ErrNotFound if not exists.
func (s *AccountFixtureStore) GetByAddress(_ context.Context, address string) (*domain.AccountFixture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, exists := s.byAddress[address]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyFixture(f), nil
}

// GetAll retrieves every fixture ordered by address.
func (s *AccountFixtureStore) GetAll(_ context.Context) ([]*domain.AccountFixture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.AccountFixture, 0, len(s.byAddress))
	for _, f := range s.byAddress {
		result = append(result, copyFixture(f))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result, nil
}

func copyFixture(f *domain.AccountFixture) *domain.AccountFixture {
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}

var _ storage.AccountFixtureStore = (*AccountFixtureStore)(nil)
