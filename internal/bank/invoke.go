package bank

import (
	"bytes"
	"fmt"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

const maxInvokeDepth = 5

// Processor executes instructions addressed to one program.
type Processor interface {
	Process(ctx *InvokeContext, accounts []*InstructionAccount, data []byte) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *InvokeContext, accounts []*InstructionAccount, data []byte) error

// Process calls f.
func (f ProcessorFunc) Process(ctx *InvokeContext, accounts []*InstructionAccount, data []byte) error {
	return f(ctx, accounts, data)
}

// InstructionAccount is an account as seen by one instruction. Account
// points at the transaction's working copy; mutations are committed only if
// the whole transaction succeeds.
type InstructionAccount struct {
	Key        solana.PublicKey
	IsSigner   bool
	IsWritable bool
	*solana.Account
}

// txState is the working set of a single transaction.
type txState struct {
	bank       *Bank
	accounts   map[solana.PublicKey]*solana.Account
	logs       []string
	unitsUsed  uint64
	unitLimit  uint64
	returnData []byte
	slot       uint64
	unixTime   int64
}

func (t *txState) log(format string, args ...interface{}) {
	t.logs = append(t.logs, fmt.Sprintf(format, args...))
}

// execute runs one program invocation and verifies the account changes it made.
func (t *txState) execute(programID solana.PublicKey, accounts []*InstructionAccount, data []byte, depth int) error {
	if depth > maxInvokeDepth {
		return ErrCallDepth
	}
	processor, ok := t.bank.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedProgram, programID)
	}

	t.log("Program %s invoke [%d]", programID, depth)
	startUnits := t.unitsUsed
	ictx := &InvokeContext{
		tx:        t,
		programID: programID,
		depth:     depth,
		accounts:  accounts,
		pre:       snapshot(accounts),
	}

	err := processor.Process(ictx, accounts, data)
	if err == nil {
		err = verifyChanges(programID, accounts, ictx.pre)
	}
	t.log("Program %s consumed %d of %d compute units", programID, t.unitsUsed-startUnits, t.unitLimit-startUnits)
	if err != nil {
		t.log("Program %s failed: %v", programID, err)
		return err
	}
	t.log("Program %s success", programID)
	return nil
}

// InvokeContext is handed to a Processor for the duration of one invocation.
type InvokeContext struct {
	tx        *txState
	programID solana.PublicKey
	depth     int
	accounts  []*InstructionAccount
	pre       map[solana.PublicKey]*solana.Account
}

// ProgramID returns the ID of the executing program.
func (c *InvokeContext) ProgramID() solana.PublicKey {
	return c.programID
}

// Slot returns the slot the transaction executes in.
func (c *InvokeContext) Slot() uint64 {
	return c.tx.slot
}

// UnixTimestamp returns the simulated clock.
func (c *InvokeContext) UnixTimestamp() int64 {
	return c.tx.unixTime
}

// Rent returns the bank's rent configuration.
func (c *InvokeContext) Rent() Rent {
	return c.tx.bank.rent
}

// Log appends a program log line.
func (c *InvokeContext) Log(format string, args ...interface{}) {
	c.tx.log("Program log: "+format, args...)
}

// SetReturnData records data returned to the caller.
func (c *InvokeContext) SetReturnData(data []byte) {
	c.tx.returnData = append([]byte(nil), data...)
}

// Consume charges compute units against the transaction limit.
func (c *InvokeContext) Consume(units uint64) error {
	c.tx.unitsUsed += units
	if c.tx.unitsUsed > c.tx.unitLimit {
		c.tx.unitsUsed = c.tx.unitLimit
		return ErrComputationalBudgetExceed
	}
	return nil
}

// Invoke performs a cross-program invocation. Accounts must be a subset of
// the caller's accounts. Signer privilege extends to program addresses
// derived from signerSeeds under the caller's program ID.
func (c *InvokeContext) Invoke(ix solana.Instruction, signerSeeds ...[][]byte) error {
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}

	signers := make(map[solana.PublicKey]bool)
	for _, a := range c.accounts {
		if a.IsSigner {
			signers[a.Key] = true
		}
	}
	for _, seeds := range signerSeeds {
		pda, err := solana.CreateProgramAddress(seeds, c.programID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPrivilegeEscalation, err)
		}
		signers[pda] = true
	}

	metas := ix.Accounts()
	callee := make([]*InstructionAccount, len(metas))
	for i, meta := range metas {
		caller := c.find(meta.PublicKey)
		if caller == nil {
			return fmt.Errorf("%w: %s", ErrMissingAccount, meta.PublicKey)
		}
		if meta.IsSigner && !signers[meta.PublicKey] {
			return fmt.Errorf("%w: %s is not a signer", ErrPrivilegeEscalation, meta.PublicKey)
		}
		if meta.IsWritable && !caller.IsWritable {
			return fmt.Errorf("%w: %s is not writable", ErrPrivilegeEscalation, meta.PublicKey)
		}
		callee[i] = &InstructionAccount{
			Key:        meta.PublicKey,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			Account:    caller.Account,
		}
	}

	if err := c.tx.execute(ix.ProgramID(), callee, data, c.depth+1); err != nil {
		return err
	}
	for _, a := range callee {
		c.pre[a.Key] = a.Account.Clone()
	}
	return nil
}

func (c *InvokeContext) find(key solana.PublicKey) *InstructionAccount {
	for _, a := range c.accounts {
		if a.Key.Equals(key) {
			return a
		}
	}
	return nil
}

func snapshot(accounts []*InstructionAccount) map[solana.PublicKey]*solana.Account {
	pre := make(map[solana.PublicKey]*solana.Account, len(accounts))
	for _, a := range accounts {
		if _, ok := pre[a.Key]; !ok {
			pre[a.Key] = a.Account.Clone()
		}
	}
	return pre
}

// verifyChanges enforces the runtime's ownership rules on everything an
// instruction changed.
func verifyChanges(programID solana.PublicKey, accounts []*InstructionAccount, pre map[solana.PublicKey]*solana.Account) error {
	writable := make(map[solana.PublicKey]bool, len(accounts))
	unique := make(map[solana.PublicKey]*solana.Account, len(accounts))
	for _, a := range accounts {
		writable[a.Key] = writable[a.Key] || a.IsWritable
		unique[a.Key] = a.Account
	}

	var before, after uint64
	for key, post := range unique {
		prev := pre[key]
		before += prev.Lamports
		after += post.Lamports

		if post.Executable != prev.Executable {
			return ErrExecutableModified
		}
		if !post.Owner.Equals(prev.Owner) {
			if !writable[key] || !prev.Owner.Equals(programID) || !isZeroed(post.Data) {
				return ErrModifiedProgramID
			}
		}
		if !bytes.Equal(post.Data, prev.Data) {
			if !writable[key] {
				return ErrReadonlyDataModified
			}
			if !prev.Owner.Equals(programID) {
				return ErrExternalDataModified
			}
		}
		if post.Lamports != prev.Lamports {
			if !writable[key] {
				return ErrReadonlyLamportChange
			}
			if post.Lamports < prev.Lamports && !prev.Owner.Equals(programID) {
				return ErrExternalLamportSpend
			}
		}
	}
	if before != after {
		return ErrUnbalancedInstruction
	}
	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
