package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/storage"
)

// AccountFixtureStore implements storage.AccountFixtureStore using PostgreSQL.
type AccountFixtureStore struct {
	pool *Pool
}

// NewAccountFixtureStore creates a new AccountFixtureStore.
func NewAccountFixtureStore(pool *Pool) *AccountFixtureStore {
	return &AccountFixtureStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountFixtureStore = (*AccountFixtureStore)(nil)

// Insert adds a fixture. Returns ErrDuplicateKey if the address exists.
func (s *AccountFixtureStore) Insert(ctx context.Context, f *domain.AccountFixture) error {
	if f == nil || f.Address == "" || f.Owner == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO account_fixtures (
			address, label, lamports, owner, data, executable, rent_epoch
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	data := f.Data
	if data == nil {
		data = []byte{}
	}
	_, err := s.pool.Exec(ctx, query,
		f.Address,
		f.Label,
		f.Lamports,
		f.Owner,
		data,
		f.Executable,
		f.RentEpoch,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert account fixture: %w", err)
	}
	return nil
}

// GetByAddress retrieves a fixture. Returns ErrNotFound if not exists.
func (s *AccountFixtureStore) GetByAddress(ctx context.Context, address string) (*domain.AccountFixture, error) {
	query := `
		SELECT address, label, lamports, owner, data, executable, rent_epoch, created_at
		FROM account_fixtures
		WHERE address = $1
	`

	f, err := scanFixture(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account fixture: %w", err)
	}
	return f, nil
}

// GetAll retrieves every fixture ordered by address.
func (s *AccountFixtureStore) GetAll(ctx context.Context) ([]*domain.AccountFixture, error) {
	query := `
		SELECT address, label, lamports, owner, data, executable, rent_epoch, created_at
		FROM account_fixtures
		ORDER BY address ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query account fixtures: %w", err)
	}
	defer rows.Close()

	var result []*domain.AccountFixture
	for rows.Next() {
		f, err := scanFixture(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account fixture: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account fixtures: %w", err)
	}
	return result, nil
}

// scanFixture scans a single row into AccountFixture.
func scanFixture(row pgx.Row) (*domain.AccountFixture, error) {
	var f domain.AccountFixture

	err := row.Scan(
		&f.Address,
		&f.Label,
		&f.Lamports,
		&f.Owner,
		&f.Data,
		&f.Executable,
		&f.RentEpoch,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
