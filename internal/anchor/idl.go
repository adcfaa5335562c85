// Package anchor builds and submits instructions for programs that follow
// the Anchor framework's discriminator and account layout conventions.
package anchor

import (
	"crypto/sha256"
	"errors"
	"strings"
	"unicode"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

// DiscriminatorSize is the length of instruction and account discriminators.
const DiscriminatorSize = 8

// Discriminator prefixes an instruction or account payload.
type Discriminator [DiscriminatorSize]byte

// Framework errors shared by programs and clients.
var (
	ErrInstructionFallbackNotFound  = errors.New("fallback functions are not supported")
	ErrInstructionDidNotDeserialize = errors.New("the program could not deserialize the given instruction")
	ErrAccountDiscriminatorMismatch = errors.New("account discriminator did not match what was expected")
	ErrAccountDidNotDeserialize     = errors.New("failed to deserialize the account")
	ErrAccountOwnedByWrongProgram   = errors.New("the given account is owned by a different program than expected")
	ErrAccountNotSigner             = errors.New("the given account did not sign")
	ErrAccountNotMutable            = errors.New("the given account is not mutable")
	ErrAccountNotResolved           = errors.New("account not provided and has no default")
	ErrUnknownInstruction           = errors.New("instruction not in IDL")
)

// InstructionDiscriminator returns sha256("global:<snake_case name>")[:8].
func InstructionDiscriminator(name string) Discriminator {
	return hashDiscriminator("global:" + snakeCase(name))
}

// AccountDiscriminator returns sha256("account:<Name>")[:8].
func AccountDiscriminator(name string) Discriminator {
	return hashDiscriminator("account:" + name)
}

func hashDiscriminator(preimage string) Discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AccountDefault tells the builder how to fill an account the caller omitted.
type AccountDefault int

const (
	// NoDefault requires the caller to supply the account.
	NoDefault AccountDefault = iota
	// WalletDefault resolves to the provider's wallet.
	WalletDefault
	// AddressDefault resolves to AccountSpec.Address.
	AddressDefault
)

// AccountSpec describes one account of an instruction.
type AccountSpec struct {
	Name     string
	Writable bool
	Signer   bool
	Default  AccountDefault
	Address  solana.PublicKey
}

// InstructionSpec describes one instruction.
type InstructionSpec struct {
	Name     string
	Accounts []AccountSpec
}

// IDL is the client-side description of a program.
type IDL struct {
	Name         string
	Instructions []InstructionSpec
	Accounts     []string
}

func (idl IDL) instruction(name string) (InstructionSpec, bool) {
	for _, ix := range idl.Instructions {
		if ix.Name == name {
			return ix, true
		}
	}
	return InstructionSpec{}, false
}

// SystemProgram is the conventional systemProgram account.
func SystemProgram() AccountSpec {
	return AccountSpec{Name: "systemProgram", Default: AddressDefault, Address: solana.SystemProgramID}
}
