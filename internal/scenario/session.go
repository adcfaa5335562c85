package scenario

import (
	"context"
	"fmt"
	"log"

	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/provider"
	"github.com/solana-token-lab/bankrun/internal/puppet"
	"github.com/solana-token-lab/bankrun/internal/solana"
	"github.com/solana-token-lab/bankrun/internal/storage"
)

// SessionOptions configures StartSession.
type SessionOptions struct {
	// Fixtures preloads genesis accounts. Optional.
	Fixtures storage.AccountFixtureStore
	Sinks    []bank.ReceiptSink
	// Payer signs as the provider wallet. Generated if nil.
	Payer   *solana.Keypair
	Confirm provider.ConfirmOptions
	Logger  *log.Logger
}

// Session is a started bank with the puppet programs deployed and a
// provider whose wallet is the funded payer.
type Session struct {
	*bank.Context
	Provider *provider.BankProvider
}

// StartSession boots a fresh in-process ledger for the scenario.
func StartSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	var accounts []bank.AccountSpec
	if opts.Fixtures != nil {
		var err error
		accounts, err = FixtureAccounts(ctx, opts.Fixtures)
		if err != nil {
			return nil, err
		}
		logger.Printf("loaded %d account fixtures", len(accounts))
	}

	bctx, err := bank.Start(bank.GenesisConfig{
		Programs: puppet.Programs(),
		Accounts: accounts,
		Payer:    opts.Payer,
		Options: bank.Options{
			Sinks:  opts.Sinks,
			Logger: logger,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start bank: %w", err)
	}

	wallet := solana.NewKeypairWallet(bctx.Payer)
	return &Session{
		Context: bctx,
		Provider: provider.NewBankProvider(bctx.Bank, wallet, provider.Options{
			Confirm: opts.Confirm,
			Logger:  logger,
		}),
	}, nil
}

// FixtureAccounts converts every stored fixture into a genesis account.
func FixtureAccounts(ctx context.Context, store storage.AccountFixtureStore) ([]bank.AccountSpec, error) {
	fixtures, err := store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load account fixtures: %w", err)
	}

	specs := make([]bank.AccountSpec, 0, len(fixtures))
	for _, f := range fixtures {
		spec, err := fixtureAccount(f)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func fixtureAccount(f *domain.AccountFixture) (bank.AccountSpec, error) {
	address, err := solana.ParsePublicKey(f.Address)
	if err != nil {
		return bank.AccountSpec{}, fmt.Errorf("fixture %q address: %w", f.Label, err)
	}
	owner, err := solana.ParsePublicKey(f.Owner)
	if err != nil {
		return bank.AccountSpec{}, fmt.Errorf("fixture %q owner: %w", f.Label, err)
	}
	if f.Lamports < 0 || f.RentEpoch < 0 {
		return bank.AccountSpec{}, fmt.Errorf("fixture %q: negative lamports or rent epoch", f.Label)
	}
	return bank.AccountSpec{
		Address: address,
		Account: solana.Account{
			Lamports:   uint64(f.Lamports),
			Owner:      owner,
			Data:       append([]byte(nil), f.Data...),
			Executable: f.Executable,
			RentEpoch:  uint64(f.RentEpoch),
		},
	}, nil
}
