// Package puppet implements the puppet and puppet-master example programs
// as native bank processors together with their typed clients.
package puppet

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/solana-token-lab/bankrun/internal/anchor"
	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

// Program IDs.
var (
	ProgramID       = solana.MustPublicKey("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")
	MasterProgramID = solana.MustPublicKey("HmbTLCmaGvZhKnn1Zfa1JVnp7vkMV4DYVxPLWBVoN65L")
)

// DataAccountName is the account type holding the puppet's value.
const DataAccountName = "Data"

// DataAccountSize is discriminator + u64.
const DataAccountSize = anchor.DiscriminatorSize + 8

const instructionUnits = 1_500

// IDL describes the puppet program.
var IDL = anchor.IDL{
	Name: "puppet",
	Instructions: []anchor.InstructionSpec{
		{
			Name: "initialize",
			Accounts: []anchor.AccountSpec{
				{Name: "puppet", Writable: true, Signer: true},
				{Name: "user", Writable: true, Signer: true, Default: anchor.WalletDefault},
				anchor.SystemProgram(),
			},
		},
		{
			Name: "setData",
			Accounts: []anchor.AccountSpec{
				{Name: "puppet", Writable: true},
			},
		},
	},
	Accounts: []string{DataAccountName},
}

// MasterIDL describes the puppet-master program.
var MasterIDL = anchor.IDL{
	Name: "puppet_master",
	Instructions: []anchor.InstructionSpec{
		{
			Name: "pullStrings",
			Accounts: []anchor.AccountSpec{
				{Name: "puppet", Writable: true},
				{Name: "puppetProgram", Default: anchor.AddressDefault, Address: ProgramID},
			},
		},
	},
}

// Data is the decoded puppet account.
type Data struct {
	Data uint64
}

var (
	initializeDiscriminator  = anchor.InstructionDiscriminator("initialize")
	setDataDiscriminator     = anchor.InstructionDiscriminator("setData")
	pullStringsDiscriminator = anchor.InstructionDiscriminator("pullStrings")
	dataDiscriminator        = anchor.AccountDiscriminator(DataAccountName)
)

// Programs returns the genesis specs for both programs.
func Programs() []bank.ProgramSpec {
	return []bank.ProgramSpec{
		{Name: IDL.Name, ProgramID: ProgramID, Processor: Processor{}},
		{Name: MasterIDL.Name, ProgramID: MasterProgramID, Processor: MasterProcessor{}},
	}
}

// Processor executes the puppet program.
type Processor struct{}

// Process dispatches on the instruction discriminator.
func (Processor) Process(ctx *bank.InvokeContext, accounts []*bank.InstructionAccount, data []byte) error {
	if err := ctx.Consume(instructionUnits); err != nil {
		return err
	}
	disc, args, err := splitInstruction(data)
	if err != nil {
		return err
	}
	switch disc {
	case initializeDiscriminator:
		ctx.Log("Instruction: Initialize")
		return initialize(ctx, accounts)
	case setDataDiscriminator:
		ctx.Log("Instruction: SetData")
		return setData(accounts, args)
	default:
		return anchor.ErrInstructionFallbackNotFound
	}
}

func initialize(ctx *bank.InvokeContext, accounts []*bank.InstructionAccount) error {
	if len(accounts) < 3 {
		return bank.ErrNotEnoughAccountKeys
	}
	puppet, user := accounts[0], accounts[1]
	if !puppet.IsSigner || !user.IsSigner {
		return anchor.ErrAccountNotSigner
	}
	if !puppet.IsWritable || !user.IsWritable {
		return anchor.ErrAccountNotMutable
	}

	lamports := ctx.Rent().MinimumBalance(DataAccountSize)
	create := bank.CreateAccountInstruction(user.Key, puppet.Key, lamports, DataAccountSize, ctx.ProgramID())
	if err := ctx.Invoke(create); err != nil {
		return err
	}
	copy(puppet.Data, dataDiscriminator[:])
	return nil
}

func setData(accounts []*bank.InstructionAccount, args []byte) error {
	if len(accounts) < 1 {
		return bank.ErrNotEnoughAccountKeys
	}
	if len(args) != 8 {
		return anchor.ErrInstructionDidNotDeserialize
	}
	puppet := accounts[0]
	if err := checkDataAccount(puppet); err != nil {
		return err
	}
	if !puppet.IsWritable {
		return anchor.ErrAccountNotMutable
	}
	copy(puppet.Data[anchor.DiscriminatorSize:], args)
	return nil
}

func checkDataAccount(acc *bank.InstructionAccount) error {
	if !acc.Owner.Equals(ProgramID) {
		return fmt.Errorf("%w: %s", anchor.ErrAccountOwnedByWrongProgram, acc.Key)
	}
	if len(acc.Data) != DataAccountSize || !bytes.Equal(acc.Data[:anchor.DiscriminatorSize], dataDiscriminator[:]) {
		return fmt.Errorf("%w: %s", anchor.ErrAccountDiscriminatorMismatch, acc.Key)
	}
	return nil
}

// MasterProcessor executes the puppet-master program, which sets the
// puppet's value through a cross-program invocation.
type MasterProcessor struct{}

// Process handles pull_strings.
func (MasterProcessor) Process(ctx *bank.InvokeContext, accounts []*bank.InstructionAccount, data []byte) error {
	if err := ctx.Consume(instructionUnits); err != nil {
		return err
	}
	disc, args, err := splitInstruction(data)
	if err != nil {
		return err
	}
	if disc != pullStringsDiscriminator {
		return anchor.ErrInstructionFallbackNotFound
	}
	if len(accounts) < 2 {
		return bank.ErrNotEnoughAccountKeys
	}
	if len(args) != 8 {
		return anchor.ErrInstructionDidNotDeserialize
	}
	ctx.Log("Instruction: PullStrings")

	puppet, program := accounts[0], accounts[1]
	if !program.Key.Equals(ProgramID) {
		return fmt.Errorf("%w: expected puppet program, got %s", bank.ErrUnsupportedProgram, program.Key)
	}
	return ctx.Invoke(SetDataInstruction(puppet.Key, binary.LittleEndian.Uint64(args)))
}

// SetDataInstruction builds a puppet set_data instruction.
func SetDataInstruction(puppet solana.PublicKey, value uint64) solana.Instruction {
	data := make([]byte, anchor.DiscriminatorSize+8)
	copy(data, setDataDiscriminator[:])
	binary.LittleEndian.PutUint64(data[anchor.DiscriminatorSize:], value)
	return solana.NewInstruction(ProgramID, solana.AccountMetaSlice{
		solana.Meta(puppet).WRITE(),
	}, data)
}

func splitInstruction(data []byte) (anchor.Discriminator, []byte, error) {
	var disc anchor.Discriminator
	if len(data) < anchor.DiscriminatorSize {
		return disc, nil, anchor.ErrInstructionFallbackNotFound
	}
	copy(disc[:], data)
	return disc, data[anchor.DiscriminatorSize:], nil
}
