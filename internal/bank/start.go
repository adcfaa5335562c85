package bank

import (
	"fmt"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

// DefaultPayerLamports funds the session payer when GenesisConfig leaves it unset.
const DefaultPayerLamports = 1_000_000_000_000

// ProgramSpec registers a native program at genesis.
type ProgramSpec struct {
	Name      string
	ProgramID solana.PublicKey
	Processor Processor
}

// AccountSpec preloads an account at genesis.
type AccountSpec struct {
	Address solana.PublicKey
	Account solana.Account
}

// GenesisConfig describes the initial state of a session.
type GenesisConfig struct {
	Programs []ProgramSpec
	Accounts []AccountSpec

	// Payer is funded with PayerLamports. A random keypair is generated if nil.
	Payer         *solana.Keypair
	PayerLamports uint64

	Options Options
}

// Context is a started simulator session.
type Context struct {
	Bank          *Bank
	Payer         *solana.Keypair
	LastBlockhash solana.Hash
}

// Start creates a bank, deploys the programs and accounts, funds the payer
// and produces the first slot so that a blockhash is available.
func Start(cfg GenesisConfig) (*Context, error) {
	b, err := New(cfg.Options)
	if err != nil {
		return nil, err
	}

	for _, p := range cfg.Programs {
		if err := b.AddProgram(p.ProgramID, p.Processor); err != nil {
			return nil, fmt.Errorf("add program %s: %w", p.Name, err)
		}
		b.logger.Printf("deployed program %s at %s", p.Name, p.ProgramID)
	}
	for _, a := range cfg.Accounts {
		acc := a.Account
		b.SetAccount(a.Address, &acc)
	}

	payer := cfg.Payer
	if payer == nil {
		if payer, err = solana.NewKeypair(); err != nil {
			return nil, err
		}
	}
	lamports := cfg.PayerLamports
	if lamports == 0 {
		lamports = DefaultPayerLamports
	}
	b.SetAccount(payer.PublicKey(), &solana.Account{
		Lamports: lamports,
		Owner:    solana.SystemProgramID,
	})

	return &Context{
		Bank:          b,
		Payer:         payer,
		LastBlockhash: b.AdvanceSlot(),
	}, nil
}
