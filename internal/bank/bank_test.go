package bank

import (
	"context"
	"errors"
	"testing"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

func startTest(t *testing.T, programs ...ProgramSpec) *Context {
	t.Helper()
	ctx, err := Start(GenesisConfig{Programs: programs})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return ctx
}

func signedLegacy(t *testing.T, blockhash solana.Hash, payer *solana.Keypair, ix solana.Instruction, extra ...solana.Signer) *solana.LegacyTransaction {
	t.Helper()
	tx := solana.NewLegacyTransaction(ix)
	fp := payer.PublicKey()
	tx.FeePayer = &fp
	tx.RecentBlockhash = blockhash
	signers := append([]solana.Signer{payer}, extra...)
	if err := tx.PartialSign(signers...); err != nil {
		t.Fatalf("PartialSign: %v", err)
	}
	return tx
}

func TestNew_NoBlockhashUntilFirstSlot(t *testing.T) {
	b, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bh, err := b.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if bh != nil {
		t.Fatalf("expected no blockhash before the first slot, got %s", bh.Blockhash)
	}

	h := b.AdvanceSlot()
	bh, _ = b.GetLatestBlockhash(context.Background())
	if bh == nil || bh.Blockhash != h {
		t.Fatalf("expected blockhash %s after AdvanceSlot, got %+v", h, bh)
	}
	if bh.LastValidBlockHeight != 1+DefaultMaxProcessingAge {
		t.Errorf("LastValidBlockHeight = %d, want %d", bh.LastValidBlockHeight, 1+DefaultMaxProcessingAge)
	}
}

func TestAdvanceSlot_Deterministic(t *testing.T) {
	a, _ := New(Options{})
	b, _ := New(Options{})
	for i := 0; i < 3; i++ {
		if ha, hb := a.AdvanceSlot(), b.AdvanceSlot(); ha != hb {
			t.Fatalf("slot %d: blockhashes differ: %s vs %s", i+1, ha, hb)
		}
	}
}

func TestWarpToSlot(t *testing.T) {
	b, _ := New(Options{})
	if err := b.WarpToSlot(100); err != nil {
		t.Fatalf("WarpToSlot: %v", err)
	}
	slot, _ := b.GetSlot(context.Background())
	if slot != 100 {
		t.Errorf("slot = %d, want 100", slot)
	}
	if err := b.WarpToSlot(50); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("expected ErrInvalidSlot, got %v", err)
	}
}

func TestProcessTransaction_Transfer(t *testing.T) {
	bctx := startTest(t)
	recipient := solana.MustNewKeypair().PublicKey()

	var seen []*solana.TransactionMeta
	bctx.Bank.AddSink(SinkFunc(func(_ context.Context, meta *solana.TransactionMeta) {
		seen = append(seen, meta)
	}))

	tx := signedLegacy(t, bctx.LastBlockhash, bctx.Payer, TransferInstruction(bctx.Payer.PublicKey(), recipient, 1_000_000))
	meta, err := bctx.Bank.ProcessTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("ProcessTransaction: %v", err)
	}
	if meta.Fee != DefaultLamportsPerSignature {
		t.Errorf("fee = %d, want %d", meta.Fee, DefaultLamportsPerSignature)
	}
	if meta.Signature != solana.SignatureID(*tx.Signature()) {
		t.Errorf("signature = %s, want first signature", meta.Signature)
	}

	got, _ := bctx.Bank.GetBalance(context.Background(), recipient)
	if got != 1_000_000 {
		t.Errorf("recipient balance = %d, want 1000000", got)
	}
	payer, _ := bctx.Bank.GetBalance(context.Background(), bctx.Payer.PublicKey())
	if want := uint64(DefaultPayerLamports - 1_000_000 - DefaultLamportsPerSignature); payer != want {
		t.Errorf("payer balance = %d, want %d", payer, want)
	}
	if len(seen) != 1 || seen[0] != meta {
		t.Errorf("sink saw %d receipts, want 1", len(seen))
	}
}

func TestProcessTransaction_Rejections(t *testing.T) {
	bctx := startTest(t)
	payer := bctx.Payer
	other := solana.MustNewKeypair()
	ix := TransferInstruction(payer.PublicKey(), other.PublicKey(), 1)

	tests := []struct {
		name  string
		build func() solana.Transaction
		want  error
	}{
		{
			name: "unsigned",
			build: func() solana.Transaction {
				tx := solana.NewLegacyTransaction(ix)
				fp := payer.PublicKey()
				tx.FeePayer = &fp
				tx.RecentBlockhash = bctx.LastBlockhash
				return tx
			},
			want: ErrMissingSignature,
		},
		{
			name: "unknown blockhash",
			build: func() solana.Transaction {
				return signedLegacy(t, solana.Hash{1, 2, 3}, payer, ix)
			},
			want: ErrBlockhashNotFound,
		},
		{
			name: "tampered signature",
			build: func() solana.Transaction {
				tx := signedLegacy(t, bctx.LastBlockhash, payer, ix)
				sig := *tx.Signatures[0].Signature
				sig[0] ^= 0xff
				tx.Signatures[0].Signature = &sig
				return tx
			},
			want: ErrSignatureFailure,
		},
		{
			name: "unfunded fee payer",
			build: func() solana.Transaction {
				return signedLegacy(t, bctx.LastBlockhash, other, TransferInstruction(other.PublicKey(), payer.PublicKey(), 1))
			},
			want: ErrAccountNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, _ := bctx.Bank.GetBalance(context.Background(), payer.PublicKey())
			_, err := bctx.Bank.ProcessTransaction(context.Background(), tt.build())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			after, _ := bctx.Bank.GetBalance(context.Background(), payer.PublicKey())
			if before != after {
				t.Errorf("rejected transaction charged fee: %d -> %d", before, after)
			}
		})
	}
}

func TestProcessTransaction_AlreadyProcessed(t *testing.T) {
	bctx := startTest(t)
	tx := signedLegacy(t, bctx.LastBlockhash, bctx.Payer, TransferInstruction(bctx.Payer.PublicKey(), solana.MustNewKeypair().PublicKey(), 10))

	if _, err := bctx.Bank.ProcessTransaction(context.Background(), tx); err != nil {
		t.Fatalf("first ProcessTransaction: %v", err)
	}
	if _, err := bctx.Bank.ProcessTransaction(context.Background(), tx); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestProcessTransaction_ExpiredBlockhash(t *testing.T) {
	bctx, err := Start(GenesisConfig{Options: Options{MaxProcessingAge: 2}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	old := bctx.LastBlockhash
	for i := 0; i < 3; i++ {
		bctx.Bank.AdvanceSlot()
	}
	tx := signedLegacy(t, old, bctx.Payer, TransferInstruction(bctx.Payer.PublicKey(), solana.MustNewKeypair().PublicKey(), 10))
	if _, err := bctx.Bank.ProcessTransaction(context.Background(), tx); !errors.Is(err, ErrBlockhashNotFound) {
		t.Fatalf("expected ErrBlockhashNotFound, got %v", err)
	}
}

func TestProcessTransaction_FailedExecutionChargesFee(t *testing.T) {
	bctx := startTest(t)
	payer := bctx.Payer.PublicKey()
	before, _ := bctx.Bank.GetBalance(context.Background(), payer)

	tx := signedLegacy(t, bctx.LastBlockhash, bctx.Payer, TransferInstruction(payer, solana.MustNewKeypair().PublicKey(), before*2))
	_, err := bctx.Bank.ProcessTransaction(context.Background(), tx)

	var txErr *TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected *TransactionError, got %v", err)
	}
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds in chain, got %v", err)
	}
	var ixErr *InstructionError
	if !errors.As(err, &ixErr) || ixErr.Index != 0 {
		t.Errorf("expected InstructionError at index 0, got %v", err)
	}
	if len(txErr.Logs) == 0 {
		t.Error("expected program logs on failure")
	}

	after, _ := bctx.Bank.GetBalance(context.Background(), payer)
	if before-after != DefaultLamportsPerSignature {
		t.Errorf("charged %d, want only the fee %d", before-after, DefaultLamportsPerSignature)
	}
}

func TestCreateAccount_AlreadyInUse(t *testing.T) {
	bctx := startTest(t)
	target := solana.MustNewKeypair()
	owner := solana.MustNewKeypair().PublicKey()
	create := func() error {
		tx := signedLegacy(t, bctx.Bank.AdvanceSlot(), bctx.Payer,
			CreateAccountInstruction(bctx.Payer.PublicKey(), target.PublicKey(), 10_000_000, 16, owner), target)
		_, err := bctx.Bank.ProcessTransaction(context.Background(), tx)
		return err
	}

	if err := create(); err != nil {
		t.Fatalf("first create: %v", err)
	}
	acc, _ := bctx.Bank.GetAccount(context.Background(), target.PublicKey())
	if acc == nil || len(acc.Data) != 16 || !acc.Owner.Equals(owner) {
		t.Fatalf("unexpected account after create: %+v", acc)
	}
	if err := create(); !errors.Is(err, ErrAccountAlreadyInUse) {
		t.Fatalf("expected ErrAccountAlreadyInUse, got %v", err)
	}
}

func TestAddProgram_Layout(t *testing.T) {
	programID := solana.MustNewKeypair().PublicKey()
	bctx := startTest(t, ProgramSpec{Name: "noop", ProgramID: programID, Processor: ProcessorFunc(
		func(*InvokeContext, []*InstructionAccount, []byte) error { return nil },
	)})

	acc, _ := bctx.Bank.GetAccount(context.Background(), programID)
	if acc == nil || !acc.Executable || !acc.Owner.Equals(solana.BPFLoaderUpgradeableID) {
		t.Fatalf("unexpected program account: %+v", acc)
	}
	programData, _, err := solana.FindProgramAddress([][]byte{programID[:]}, solana.BPFLoaderUpgradeableID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	var stored solana.PublicKey
	copy(stored[:], acc.Data[4:36])
	if !stored.Equals(programData) {
		t.Errorf("program account points at %s, want %s", stored, programData)
	}
	if pd, _ := bctx.Bank.GetAccount(context.Background(), programData); pd == nil || pd.Data[0] != 3 {
		t.Errorf("missing programdata account: %+v", pd)
	}

	if err := bctx.Bank.AddProgram(programID, SystemProgram{}); !errors.Is(err, ErrProgramAlreadyRegistered) {
		t.Errorf("expected ErrProgramAlreadyRegistered, got %v", err)
	}
}

func TestInvoke_PDASignerAndOwnership(t *testing.T) {
	programID := solana.MustNewKeypair().PublicKey()
	vault, bump, err := solana.FindProgramAddress([][]byte{[]byte("vault")}, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	processor := ProcessorFunc(func(ctx *InvokeContext, accounts []*InstructionAccount, data []byte) error {
		payer, pda := accounts[0], accounts[1]
		ix := CreateAccountInstruction(payer.Key, pda.Key, 1_000_000, 8, ctx.ProgramID())
		if err := ctx.Invoke(ix, [][]byte{[]byte("vault"), {bump}}); err != nil {
			return err
		}
		pda.Data[0] = 42
		ctx.Log("vault ready")
		return nil
	})
	bctx := startTest(t, ProgramSpec{Name: "vault", ProgramID: programID, Processor: processor})

	ix := solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(bctx.Payer.PublicKey()).WRITE().SIGNER(),
		solana.Meta(vault).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}, nil)
	meta, err := bctx.Bank.ProcessTransaction(context.Background(), signedLegacy(t, bctx.LastBlockhash, bctx.Payer, ix))
	if err != nil {
		t.Fatalf("ProcessTransaction: %v", err)
	}

	acc, _ := bctx.Bank.GetAccount(context.Background(), vault)
	if acc == nil || !acc.Owner.Equals(programID) || acc.Data[0] != 42 {
		t.Fatalf("unexpected vault account: %+v", acc)
	}
	found := false
	for _, line := range meta.LogMessages {
		if line == "Program log: vault ready" {
			found = true
		}
	}
	if !found {
		t.Errorf("program log missing from %v", meta.LogMessages)
	}
}

func TestInvoke_RejectsForeignDataWrite(t *testing.T) {
	programID := solana.MustNewKeypair().PublicKey()
	processor := ProcessorFunc(func(_ *InvokeContext, accounts []*InstructionAccount, _ []byte) error {
		accounts[0].Data = []byte{1}
		return nil
	})
	bctx := startTest(t, ProgramSpec{Name: "rogue", ProgramID: programID, Processor: processor})

	ix := solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(bctx.Payer.PublicKey()).WRITE().SIGNER(),
	}, nil)
	_, err := bctx.Bank.ProcessTransaction(context.Background(), signedLegacy(t, bctx.LastBlockhash, bctx.Payer, ix))
	if !errors.Is(err, ErrExternalDataModified) {
		t.Fatalf("expected ErrExternalDataModified, got %v", err)
	}
}

func TestMinimumBalance(t *testing.T) {
	if got := DefaultRent().MinimumBalance(0); got != 890_880 {
		t.Errorf("MinimumBalance(0) = %d, want 890880", got)
	}
}
