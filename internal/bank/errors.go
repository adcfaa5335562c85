package bank

import (
	"errors"
	"fmt"
	"strings"
)

// Transaction-level rejections. A rejected transaction is not charged a fee
// and is not recorded in the status cache.
var (
	ErrSanitizeFailure           = errors.New("transaction failed to sanitize")
	ErrSignatureFailure          = errors.New("transaction did not pass signature verification")
	ErrMissingSignature          = errors.New("transaction is missing a required signature")
	ErrBlockhashNotFound         = errors.New("blockhash not found")
	ErrAlreadyProcessed          = errors.New("this transaction has already been processed")
	ErrAccountNotFound           = errors.New("attempt to debit an account but found no record of a prior credit")
	ErrInsufficientFundsForFee   = errors.New("insufficient funds for fee")
	ErrInvalidSlot               = errors.New("invalid slot")
	ErrProgramAlreadyRegistered  = errors.New("program already registered")
	ErrComputationalBudgetExceed = errors.New("computational budget exceeded")
)

// Instruction-level failures.
var (
	ErrUnsupportedProgram       = errors.New("attempt to load a program that does not exist")
	ErrMissingRequiredSignature = errors.New("missing required signature for instruction")
	ErrReadonlyDataModified     = errors.New("instruction modified data of a read-only account")
	ErrReadonlyLamportChange    = errors.New("instruction changed the balance of a read-only account")
	ErrExternalDataModified     = errors.New("instruction modified data of an account it does not own")
	ErrExternalLamportSpend     = errors.New("instruction spent from the balance of an account it does not own")
	ErrModifiedProgramID        = errors.New("instruction illegally modified the program id of an account")
	ErrExecutableModified       = errors.New("instruction changed executable bit of an account")
	ErrUnbalancedInstruction    = errors.New("sum of account balances before and after instruction do not match")
	ErrPrivilegeEscalation      = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrCallDepth                = errors.New("cross-program invocation call depth too deep")
	ErrMissingAccount           = errors.New("an account required by the instruction is missing")
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrNotEnoughAccountKeys     = errors.New("insufficient account keys for instruction")
	ErrAccountAlreadyInUse      = errors.New("account already in use")
	ErrInsufficientFunds        = errors.New("insufficient funds for instruction")
	ErrInvalidAccountOwner      = errors.New("invalid account owner")
)

// InstructionError attributes a failure to one instruction of a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("error processing instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

// TransactionError is returned by ProcessTransaction when an executed
// transaction failed. The fee has been charged and the logs are retained.
type TransactionError struct {
	Signature string
	Err       error
	Logs      []string
}

func (e *TransactionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "transaction %s failed: %v", e.Signature, e.Err)
	if len(e.Logs) > 0 {
		b.WriteString("\nlogs:\n")
		b.WriteString(strings.Join(e.Logs, "\n"))
	}
	return b.String()
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
