// Package bank is an in-process, deterministic ledger simulator. It stores
// accounts, tracks slots and blockhashes, and executes transactions against
// natively registered programs without any network I/O.
package bank

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

// Defaults for Options.
const (
	DefaultLamportsPerSignature = 5000
	DefaultStatusCacheSize      = 4096
	DefaultComputeUnitLimit     = 200_000
	DefaultSlotDuration         = 400 * time.Millisecond
)

// NativeLoaderID owns builtin program accounts.
var NativeLoaderID = solana.MustPublicKey("NativeLoader1111111111111111111111111111111")

// Options configures a Bank.
type Options struct {
	LamportsPerSignature uint64
	MaxRecentBlockhashes int
	MaxProcessingAge     uint64
	StatusCacheSize      int
	ComputeUnitLimit     uint64
	GenesisTime          time.Time
	SlotDuration         time.Duration
	Rent                 *Rent
	Sinks                []ReceiptSink
	Logger               *log.Logger
}

// Bank is a single simulator session. All methods are safe for concurrent
// use, but transactions are applied strictly one at a time.
type Bank struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*solana.Account
	programs map[solana.PublicKey]Processor

	slot          uint64
	blockHeight   uint64
	lastBlockhash solana.Hash
	hasBlockhash  bool
	blockhashes   *blockhashQueue
	statusCache   *lru.Cache[solana.Signature, uint64]

	lamportsPerSignature uint64
	computeUnitLimit     uint64
	genesisTime          time.Time
	slotDuration         time.Duration
	rent                 Rent

	sinks  []ReceiptSink
	logger *log.Logger
}

// New creates an empty bank at slot 0. No blockhash exists until the first
// slot is produced with AdvanceSlot or WarpToSlot.
func New(opts Options) (*Bank, error) {
	if opts.LamportsPerSignature == 0 {
		opts.LamportsPerSignature = DefaultLamportsPerSignature
	}
	if opts.MaxRecentBlockhashes <= 0 {
		opts.MaxRecentBlockhashes = DefaultMaxRecentBlockhashes
	}
	if opts.MaxProcessingAge == 0 {
		opts.MaxProcessingAge = DefaultMaxProcessingAge
	}
	if opts.StatusCacheSize <= 0 {
		opts.StatusCacheSize = DefaultStatusCacheSize
	}
	if opts.ComputeUnitLimit == 0 {
		opts.ComputeUnitLimit = DefaultComputeUnitLimit
	}
	if opts.GenesisTime.IsZero() {
		opts.GenesisTime = time.Unix(1_700_000_000, 0).UTC()
	}
	if opts.SlotDuration == 0 {
		opts.SlotDuration = DefaultSlotDuration
	}
	rent := DefaultRent()
	if opts.Rent != nil {
		rent = *opts.Rent
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	queue, err := newBlockhashQueue(opts.MaxRecentBlockhashes, opts.MaxProcessingAge)
	if err != nil {
		return nil, fmt.Errorf("create blockhash queue: %w", err)
	}
	statusCache, err := lru.New[solana.Signature, uint64](opts.StatusCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create status cache: %w", err)
	}

	b := &Bank{
		accounts:             make(map[solana.PublicKey]*solana.Account),
		programs:             make(map[solana.PublicKey]Processor),
		lastBlockhash:        solana.Hash(sha256.Sum256([]byte("bankrun genesis"))),
		blockhashes:          queue,
		statusCache:          statusCache,
		lamportsPerSignature: opts.LamportsPerSignature,
		computeUnitLimit:     opts.ComputeUnitLimit,
		genesisTime:          opts.GenesisTime,
		slotDuration:         opts.SlotDuration,
		rent:                 rent,
		sinks:                opts.Sinks,
		logger:               logger,
	}

	if err := b.addBuiltin(solana.SystemProgramID, SystemProgram{}); err != nil {
		return nil, err
	}
	return b, nil
}

// AddSink registers a receipt sink.
func (b *Bank) AddSink(sink ReceiptSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// GetAccount returns a copy of the account, or nil if none is stored.
func (b *Bank) GetAccount(_ context.Context, pubkey solana.PublicKey) (*solana.Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.accounts[pubkey].Clone(), nil
}

// GetBalance returns the lamports held by pubkey, zero if it does not exist.
func (b *Bank) GetBalance(_ context.Context, pubkey solana.PublicKey) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if acc, ok := b.accounts[pubkey]; ok {
		return acc.Lamports, nil
	}
	return 0, nil
}

// GetSlot returns the current slot.
func (b *Bank) GetSlot(_ context.Context) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slot, nil
}

// GetBlockHeight returns the number of blocks produced so far.
func (b *Bank) GetBlockHeight(_ context.Context) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.blockHeight, nil
}

// GetLatestBlockhash returns the newest blockhash, or nil if no slot has
// been produced yet.
func (b *Bank) GetLatestBlockhash(_ context.Context) (*solana.LatestBlockhash, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasBlockhash {
		return nil, nil
	}
	return &solana.LatestBlockhash{
		Blockhash:            b.lastBlockhash,
		LastValidBlockHeight: b.blockhashes.lastValidBlockHeight(b.blockHeight),
	}, nil
}

// UnixTimestamp returns the simulated wall clock of the current slot.
func (b *Bank) UnixTimestamp() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unixTimestampLocked()
}

func (b *Bank) unixTimestampLocked() int64 {
	return b.genesisTime.Add(time.Duration(b.slot) * b.slotDuration).Unix()
}

// Rent returns the rent configuration.
func (b *Bank) Rent() Rent {
	return b.rent
}

// SetAccount overwrites or creates an account. A nil account or one with
// zero lamports removes the record.
func (b *Bank) SetAccount(pubkey solana.PublicKey, account *solana.Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if account == nil || account.Lamports == 0 {
		delete(b.accounts, pubkey)
		return
	}
	b.accounts[pubkey] = account.Clone()
}

// AdvanceSlot produces one block and a new blockhash.
func (b *Bank) AdvanceSlot() solana.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.produceBlockLocked(b.slot + 1)
	return b.lastBlockhash
}

// WarpToSlot jumps forward to slot, producing a single block there.
func (b *Bank) WarpToSlot(slot uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot <= b.slot {
		return fmt.Errorf("%w: warp target %d not after current slot %d", ErrInvalidSlot, slot, b.slot)
	}
	b.produceBlockLocked(slot)
	return nil
}

func (b *Bank) produceBlockLocked(slot uint64) {
	b.slot = slot
	b.blockHeight++
	b.lastBlockhash = nextBlockhash(b.lastBlockhash, slot)
	b.hasBlockhash = true
	b.blockhashes.register(b.lastBlockhash, b.blockHeight)
}

// AddProgram deploys processor at programID. The program account is owned by
// the upgradeable loader and points at a programdata account derived from
// the program ID.
func (b *Bank) AddProgram(programID solana.PublicKey, processor Processor) error {
	programData, _, err := solana.FindProgramAddress([][]byte{programID[:]}, solana.BPFLoaderUpgradeableID)
	if err != nil {
		return fmt.Errorf("derive programdata address: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.programs[programID]; exists {
		return fmt.Errorf("%w: %s", ErrProgramAlreadyRegistered, programID)
	}

	programAccount := make([]byte, 36)
	programAccount[0] = 2 // UpgradeableLoaderState::Program
	copy(programAccount[4:], programData[:])

	programDataAccount := make([]byte, 45)
	programDataAccount[0] = 3 // UpgradeableLoaderState::ProgramData
	putUint64(programDataAccount[4:12], b.slot)
	programDataAccount[12] = 0 // no upgrade authority

	b.programs[programID] = processor
	b.accounts[programID] = &solana.Account{
		Lamports:   b.rent.MinimumBalance(len(programAccount)),
		Owner:      solana.BPFLoaderUpgradeableID,
		Data:       programAccount,
		Executable: true,
	}
	b.accounts[programData] = &solana.Account{
		Lamports: b.rent.MinimumBalance(len(programDataAccount)),
		Owner:    solana.BPFLoaderUpgradeableID,
		Data:     programDataAccount,
	}
	return nil
}

func (b *Bank) addBuiltin(programID solana.PublicKey, processor Processor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.programs[programID]; exists {
		return fmt.Errorf("%w: %s", ErrProgramAlreadyRegistered, programID)
	}
	b.programs[programID] = processor
	b.accounts[programID] = &solana.Account{
		Lamports:   1,
		Owner:      NativeLoaderID,
		Executable: true,
	}
	return nil
}
