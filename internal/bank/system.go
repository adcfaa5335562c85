package bank

import (
	"encoding/binary"
	"fmt"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

// System program instruction discriminants.
const (
	SystemCreateAccount uint32 = 0
	SystemAssign        uint32 = 1
	SystemTransfer      uint32 = 2
)

const (
	systemInstructionUnits = 150
	maxAccountDataLen      = 10 * 1024 * 1024
)

// SystemProgram implements the subset of the system program needed to fund,
// allocate and assign accounts.
type SystemProgram struct{}

// Process dispatches on the instruction discriminant.
func (SystemProgram) Process(ctx *InvokeContext, accounts []*InstructionAccount, data []byte) error {
	if err := ctx.Consume(systemInstructionUnits); err != nil {
		return err
	}
	if len(data) < 4 {
		return ErrInvalidInstructionData
	}
	switch binary.LittleEndian.Uint32(data[:4]) {
	case SystemCreateAccount:
		return createAccount(ctx, accounts, data[4:])
	case SystemAssign:
		return assign(accounts, data[4:])
	case SystemTransfer:
		return transfer(accounts, data[4:])
	default:
		return fmt.Errorf("%w: system instruction %d", ErrInvalidInstructionData, binary.LittleEndian.Uint32(data[:4]))
	}
}

func createAccount(ctx *InvokeContext, accounts []*InstructionAccount, data []byte) error {
	if len(accounts) < 2 {
		return ErrNotEnoughAccountKeys
	}
	if len(data) != 8+8+32 {
		return ErrInvalidInstructionData
	}
	lamports := binary.LittleEndian.Uint64(data[0:8])
	space := binary.LittleEndian.Uint64(data[8:16])
	var owner solana.PublicKey
	copy(owner[:], data[16:48])

	from, to := accounts[0], accounts[1]
	if !from.IsSigner || !to.IsSigner {
		return ErrMissingRequiredSignature
	}
	if to.Lamports > 0 || len(to.Data) > 0 || !to.Owner.Equals(solana.SystemProgramID) {
		ctx.Log("Create Account: account %s already in use", to.Key)
		return ErrAccountAlreadyInUse
	}
	if space > maxAccountDataLen {
		return ErrInvalidInstructionData
	}
	if !from.Owner.Equals(solana.SystemProgramID) || len(from.Data) > 0 {
		return ErrInvalidAccountOwner
	}
	if from.Lamports < lamports {
		ctx.Log("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports)
		return ErrInsufficientFunds
	}

	to.Data = make([]byte, space)
	to.Owner = owner
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

func assign(accounts []*InstructionAccount, data []byte) error {
	if len(accounts) < 1 {
		return ErrNotEnoughAccountKeys
	}
	if len(data) != 32 {
		return ErrInvalidInstructionData
	}
	var owner solana.PublicKey
	copy(owner[:], data)

	acc := accounts[0]
	if acc.Owner.Equals(owner) {
		return nil
	}
	if !acc.IsSigner {
		return ErrMissingRequiredSignature
	}
	acc.Owner = owner
	return nil
}

func transfer(accounts []*InstructionAccount, data []byte) error {
	if len(accounts) < 2 {
		return ErrNotEnoughAccountKeys
	}
	if len(data) != 8 {
		return ErrInvalidInstructionData
	}
	lamports := binary.LittleEndian.Uint64(data)

	from, to := accounts[0], accounts[1]
	if !from.IsSigner {
		return ErrMissingRequiredSignature
	}
	if len(from.Data) > 0 {
		return ErrInvalidAccountOwner
	}
	if from.Lamports < lamports {
		return ErrInsufficientFunds
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

// CreateAccountInstruction builds a system CreateAccount instruction.
func CreateAccountInstruction(from, newAccount solana.PublicKey, lamports, space uint64, owner solana.PublicKey) solana.Instruction {
	data := make([]byte, 4+8+8+32)
	binary.LittleEndian.PutUint32(data[0:4], SystemCreateAccount)
	putUint64(data[4:12], lamports)
	putUint64(data[12:20], space)
	copy(data[20:], owner[:])
	return solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.Meta(from).WRITE().SIGNER(),
		solana.Meta(newAccount).WRITE().SIGNER(),
	}, data)
}

// AssignInstruction builds a system Assign instruction.
func AssignInstruction(account, owner solana.PublicKey) solana.Instruction {
	data := make([]byte, 4+32)
	binary.LittleEndian.PutUint32(data[0:4], SystemAssign)
	copy(data[4:], owner[:])
	return solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.Meta(account).WRITE().SIGNER(),
	}, data)
}

// TransferInstruction builds a system Transfer instruction.
func TransferInstruction(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], SystemTransfer)
	putUint64(data[4:], lamports)
	return solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.Meta(from).WRITE().SIGNER(),
		solana.Meta(to).WRITE(),
	}, data)
}

func putUint64(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}
