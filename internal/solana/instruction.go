package solana

import (
	solanago "github.com/gagliardetto/solana-go"
)

// AccountMetaSlice is an ordered list of instruction accounts.
type AccountMetaSlice = solanago.AccountMetaSlice

// NewInstruction builds an instruction from raw parts.
func NewInstruction(programID PublicKey, accounts AccountMetaSlice, data []byte) Instruction {
	return solanago.NewInstruction(programID, accounts, data)
}

// Meta starts a read-only, non-signer account meta; chain WRITE and SIGNER
// to raise its privileges.
func Meta(pubkey PublicKey) *AccountMeta {
	return solanago.Meta(pubkey)
}
