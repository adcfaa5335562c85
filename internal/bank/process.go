package bank

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

// ProcessTransaction executes tx immediately and synchronously. A failed
// execution still charges the fee and is returned as a *TransactionError
// carrying the program logs.
func (b *Bank) ProcessTransaction(ctx context.Context, tx solana.Transaction) (*solana.TransactionMeta, error) {
	meta, err := b.TryProcessTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if meta.Err != nil {
		return nil, &TransactionError{
			Signature: meta.Signature,
			Err:       meta.Err,
			Logs:      meta.LogMessages,
		}
	}
	return meta, nil
}

// TryProcessTransaction executes tx and reports execution failures in the
// returned meta instead of as an error. The error is non-nil only when the
// transaction was rejected before execution.
func (b *Bank) TryProcessTransaction(ctx context.Context, tx solana.Transaction) (*solana.TransactionMeta, error) {
	meta, sinks, err := b.process(tx)
	if err != nil {
		return nil, err
	}
	for _, sink := range sinks {
		sink.OnTransaction(ctx, meta)
	}
	return meta, nil
}

func (b *Bank) process(tx solana.Transaction) (*solana.TransactionMeta, []ReceiptSink, error) {
	msg, err := tx.CompileMessage()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSanitizeFailure, err)
	}
	if len(msg.AccountKeys) == 0 || msg.Header.NumRequiredSignatures == 0 {
		return nil, nil, ErrSanitizeFailure
	}
	payload, err := msg.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSanitizeFailure, err)
	}

	signers := solana.RequiredSigners(msg)
	sigs := solana.Signatures(tx)
	if len(sigs) != len(signers) {
		return nil, nil, fmt.Errorf("%w: expected %d signatures, got %d", ErrMissingSignature, len(signers), len(sigs))
	}
	for i, key := range signers {
		if sigs[i] == (solana.Signature{}) {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingSignature, key)
		}
		if !ed25519.Verify(ed25519.PublicKey(key[:]), payload, sigs[i][:]) {
			return nil, nil, fmt.Errorf("%w: %s", ErrSignatureFailure, key)
		}
	}
	signature := solana.SignatureID(sigs[0])

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.statusCache.Contains(sigs[0]) {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, signature)
	}
	if !b.blockhashes.isValid(msg.RecentBlockhash, b.blockHeight) {
		return nil, nil, fmt.Errorf("%w: %s", ErrBlockhashNotFound, msg.RecentBlockhash)
	}

	feePayer := msg.AccountKeys[0]
	fee := b.lamportsPerSignature * uint64(len(signers))
	payerAccount, ok := b.accounts[feePayer]
	if !ok {
		return nil, nil, fmt.Errorf("%w: fee payer %s", ErrAccountNotFound, feePayer)
	}
	if payerAccount.Lamports < fee {
		return nil, nil, fmt.Errorf("%w: fee payer %s has %d, needs %d", ErrInsufficientFundsForFee, feePayer, payerAccount.Lamports, fee)
	}

	state := &txState{
		bank:      b,
		accounts:  make(map[solana.PublicKey]*solana.Account, len(msg.AccountKeys)),
		unitLimit: b.computeUnitLimit,
		slot:      b.slot,
		unixTime:  b.unixTimestampLocked(),
	}
	for _, key := range msg.AccountKeys {
		if acc, ok := b.accounts[key]; ok {
			state.accounts[key] = acc.Clone()
		} else {
			state.accounts[key] = &solana.Account{Owner: solana.SystemProgramID}
		}
	}
	state.accounts[feePayer].Lamports -= fee

	execErr := b.executeMessage(state, msg)

	if execErr == nil {
		for key, acc := range state.accounts {
			if acc.Lamports == 0 {
				delete(b.accounts, key)
				continue
			}
			b.accounts[key] = acc
		}
	} else {
		payerAccount.Lamports -= fee
		if payerAccount.Lamports == 0 {
			delete(b.accounts, feePayer)
		}
	}
	b.statusCache.Add(sigs[0], b.slot)

	meta := &solana.TransactionMeta{
		Signature:            signature,
		Slot:                 b.slot,
		AccountKeys:          append([]solana.PublicKey(nil), msg.AccountKeys...),
		Fee:                  fee,
		ComputeUnitsConsumed: state.unitsUsed,
		LogMessages:          state.logs,
		ReturnData:           state.returnData,
		Err:                  execErr,
	}
	sinks := append([]ReceiptSink(nil), b.sinks...)
	return meta, sinks, nil
}

func (b *Bank) executeMessage(state *txState, msg *solana.Message) error {
	numKeys := len(msg.AccountKeys)
	numSigners := int(msg.Header.NumRequiredSignatures)
	numReadonlySigned := int(msg.Header.NumReadonlySignedAccounts)
	numReadonlyUnsigned := int(msg.Header.NumReadonlyUnsignedAccounts)

	isWritable := func(i int) bool {
		if i < numSigners {
			return i < numSigners-numReadonlySigned
		}
		return i < numKeys-numReadonlyUnsigned
	}

	for idx, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= numKeys {
			return &InstructionError{Index: idx, Err: ErrNotEnoughAccountKeys}
		}
		programID := msg.AccountKeys[ci.ProgramIDIndex]

		accounts := make([]*InstructionAccount, len(ci.Accounts))
		for i, accIdx := range ci.Accounts {
			if int(accIdx) >= numKeys {
				return &InstructionError{Index: idx, Err: ErrNotEnoughAccountKeys}
			}
			key := msg.AccountKeys[accIdx]
			accounts[i] = &InstructionAccount{
				Key:        key,
				IsSigner:   int(accIdx) < numSigners,
				IsWritable: isWritable(int(accIdx)),
				Account:    state.accounts[key],
			}
		}

		if err := state.execute(programID, accounts, ci.Data, 1); err != nil {
			var ixErr *InstructionError
			if errors.As(err, &ixErr) {
				return err
			}
			return &InstructionError{Index: idx, Err: err}
		}
	}
	return nil
}
