package solana

import (
	solanago "github.com/gagliardetto/solana-go"
)

// Primitive aliases. The rest of the module only imports this package.
type (
	PublicKey   = solanago.PublicKey
	PrivateKey  = solanago.PrivateKey
	Signature   = solanago.Signature
	Hash        = solanago.Hash
	Message     = solanago.Message
	Instruction = solanago.Instruction
	AccountMeta = solanago.AccountMeta
)

// Well-known program IDs.
var (
	SystemProgramID        = MustPublicKey("11111111111111111111111111111111")
	BPFLoaderUpgradeableID = MustPublicKey("BPFLoaderUpgradeab1e11111111111111111111111")
)

// Commitment is the requested finality level of a read.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Account is the state of a single account.
type Account struct {
	Lamports   uint64
	Owner      PublicKey
	Data       []byte
	Executable bool
	RentEpoch  uint64
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// Context carries the slot at which a response was observed.
type Context struct {
	Slot uint64
}

// AccountInfoResult pairs an account with the slot it was read at.
type AccountInfoResult struct {
	Context Context
	Value   *Account
}

// LatestBlockhash is a blockhash together with the last block height at
// which transactions referencing it are accepted.
type LatestBlockhash struct {
	Blockhash            Hash
	LastValidBlockHeight uint64
}

// TransactionMeta is the outcome of an executed transaction.
type TransactionMeta struct {
	Signature            string
	Slot                 uint64
	AccountKeys          []PublicKey
	Fee                  uint64
	ComputeUnitsConsumed uint64
	LogMessages          []string
	ReturnData           []byte
	Err                  error
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	Err                interface{}
	ConfirmationStatus Commitment
}

// SimulationResult is the outcome of simulateTransaction.
type SimulationResult struct {
	Err           interface{}
	Logs          []string
	UnitsConsumed uint64
}
