package anchor

import (
	"bytes"
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/solana-token-lab/bankrun/internal/provider"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

// Program is a client bound to one deployed program and one provider.
type Program struct {
	ID       solana.PublicKey
	IDL      IDL
	provider provider.SubmitOnlyProvider
}

// NewProgram creates a program client.
func NewProgram(idl IDL, programID solana.PublicKey, p provider.SubmitOnlyProvider) *Program {
	return &Program{ID: programID, IDL: idl, provider: p}
}

// Provider returns the provider used for submission and reads.
func (p *Program) Provider() provider.SubmitOnlyProvider {
	return p.provider
}

// Method starts building a call to the named instruction. Args are
// Borsh-encoded in order after the discriminator.
func (p *Program) Method(name string, args ...interface{}) *MethodBuilder {
	return &MethodBuilder{
		program:  p,
		name:     name,
		args:     args,
		accounts: make(map[string]solana.PublicKey),
	}
}

// FetchAccount reads the account at address, checks that it is a typeName
// account owned by this program, and Borsh-decodes the payload into v.
func (p *Program) FetchAccount(ctx context.Context, typeName string, address solana.PublicKey, v interface{}) error {
	res, err := p.provider.Connection().GetAccountInfoAndContext(ctx, address, solana.CommitmentConfirmed)
	if err != nil {
		return err
	}
	return DecodeAccount(p.ID, typeName, res.Value, v)
}

// DecodeAccount validates owner and discriminator and Borsh-decodes the rest into v.
func DecodeAccount(programID solana.PublicKey, typeName string, account *solana.Account, v interface{}) error {
	if !account.Owner.Equals(programID) {
		return fmt.Errorf("%w: owner %s", ErrAccountOwnedByWrongProgram, account.Owner)
	}
	want := AccountDiscriminator(typeName)
	if len(account.Data) < DiscriminatorSize || !bytes.Equal(account.Data[:DiscriminatorSize], want[:]) {
		return fmt.Errorf("%w: %s", ErrAccountDiscriminatorMismatch, typeName)
	}
	if err := bin.NewBorshDecoder(account.Data[DiscriminatorSize:]).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrAccountDidNotDeserialize, err)
	}
	return nil
}

// EncodeArgs Borsh-encodes args after the instruction discriminator.
func EncodeArgs(name string, args ...interface{}) ([]byte, error) {
	d := InstructionDiscriminator(name)
	var buf bytes.Buffer
	buf.Write(d[:])
	enc := bin.NewBorshEncoder(&buf)
	for i, arg := range args {
		if err := enc.Encode(arg); err != nil {
			return nil, fmt.Errorf("encode argument %d of %s: %w", i, name, err)
		}
	}
	return buf.Bytes(), nil
}

// MethodBuilder accumulates accounts and signers for one instruction.
type MethodBuilder struct {
	program  *Program
	name     string
	args     []interface{}
	accounts map[string]solana.PublicKey
	signers  []solana.Signer
}

// Accounts sets named accounts. Omitted accounts fall back to their IDL default.
func (b *MethodBuilder) Accounts(accounts map[string]solana.PublicKey) *MethodBuilder {
	for name, key := range accounts {
		b.accounts[name] = key
	}
	return b
}

// Signers adds signers besides the provider's wallet.
func (b *MethodBuilder) Signers(signers ...solana.Signer) *MethodBuilder {
	b.signers = append(b.signers, signers...)
	return b
}

// Instruction builds the instruction.
func (b *MethodBuilder) Instruction() (solana.Instruction, error) {
	spec, ok := b.program.IDL.instruction(b.name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, b.name)
	}

	metas := make(solana.AccountMetaSlice, 0, len(spec.Accounts))
	for _, acc := range spec.Accounts {
		key, err := b.resolve(acc)
		if err != nil {
			return nil, err
		}
		meta := solana.Meta(key)
		if acc.Writable {
			meta = meta.WRITE()
		}
		if acc.Signer {
			meta = meta.SIGNER()
		}
		metas = append(metas, meta)
	}

	data, err := EncodeArgs(b.name, b.args...)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(b.program.ID, metas, data), nil
}

func (b *MethodBuilder) resolve(acc AccountSpec) (solana.PublicKey, error) {
	if key, ok := b.accounts[acc.Name]; ok {
		return key, nil
	}
	switch acc.Default {
	case WalletDefault:
		return b.program.provider.Wallet().PublicKey(), nil
	case AddressDefault:
		return acc.Address, nil
	default:
		return solana.PublicKey{}, fmt.Errorf("%w: %s.%s", ErrAccountNotResolved, b.name, acc.Name)
	}
}

// Transaction builds an unsigned legacy transaction. The provider fills in
// the fee payer and blockhash on submission.
func (b *MethodBuilder) Transaction() (*solana.LegacyTransaction, error) {
	ix, err := b.Instruction()
	if err != nil {
		return nil, err
	}
	return solana.NewLegacyTransaction(ix), nil
}

// VersionedTransaction builds an unsigned v0 transaction paid by the wallet
// against the connection's latest blockhash.
func (b *MethodBuilder) VersionedTransaction(ctx context.Context) (*solana.VersionedTransaction, error) {
	ix, err := b.Instruction()
	if err != nil {
		return nil, err
	}
	bh, err := b.program.provider.Connection().GetLatestBlockhash(ctx, solana.CommitmentConfirmed)
	if err != nil {
		return nil, err
	}
	msg, err := solana.CompileVersionedMessage(b.program.provider.Wallet().PublicKey(), bh.Blockhash, ix)
	if err != nil {
		return nil, err
	}
	return solana.NewVersionedTransaction(msg), nil
}

// RPC builds a legacy transaction and submits it through the provider.
func (b *MethodBuilder) RPC(ctx context.Context, opts *provider.ConfirmOptions) (string, error) {
	tx, err := b.Transaction()
	if err != nil {
		return "", err
	}
	sig, err := b.program.provider.SendAndConfirm(ctx, tx, b.signers, opts)
	if err != nil {
		return "", fmt.Errorf("%s: %w", b.name, err)
	}
	return sig, nil
}

// VersionedRPC builds a v0 transaction and submits it through the provider.
func (b *MethodBuilder) VersionedRPC(ctx context.Context, opts *provider.ConfirmOptions) (string, error) {
	tx, err := b.VersionedTransaction(ctx)
	if err != nil {
		return "", err
	}
	sig, err := b.program.provider.SendAndConfirm(ctx, tx, b.signers, opts)
	if err != nil {
		return "", fmt.Errorf("%s: %w", b.name, err)
	}
	return sig, nil
}
