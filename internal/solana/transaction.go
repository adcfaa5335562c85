package solana

import (
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

var (
	// ErrUnknownSigner is returned when a signer is not a required signer of the message.
	ErrUnknownSigner = errors.New("unknown signer")

	// ErrNoFeePayer is returned when compiling a legacy transaction without a fee payer.
	ErrNoFeePayer = errors.New("transaction fee payer required")

	// ErrNoInstructions is returned when compiling a transaction with no instructions.
	ErrNoInstructions = errors.New("no instructions provided")
)

// Transaction is either a *LegacyTransaction or a *VersionedTransaction.
// Callers branch with a type switch; the two variants share no fields.
type Transaction interface {
	// CompileMessage returns the message that signatures are produced over.
	CompileMessage() (*Message, error)

	isTransaction()
}

// SignaturePair is a positional signature slot of a legacy transaction.
// Signature is nil until the owner of PublicKey has signed.
type SignaturePair struct {
	PublicKey PublicKey
	Signature *Signature
}

// LegacyTransaction keeps its fee payer and blockhash as separate mutable
// fields; the message is compiled from them on demand.
type LegacyTransaction struct {
	FeePayer        *PublicKey
	RecentBlockhash Hash
	Instructions    []Instruction
	Signatures      []SignaturePair
}

// NewLegacyTransaction creates an unsigned legacy transaction with no fee
// payer and no blockhash.
func NewLegacyTransaction(instructions ...Instruction) *LegacyTransaction {
	return &LegacyTransaction{Instructions: instructions}
}

func (*LegacyTransaction) isTransaction() {}

// Add appends instructions.
func (tx *LegacyTransaction) Add(instructions ...Instruction) *LegacyTransaction {
	tx.Instructions = append(tx.Instructions, instructions...)
	return tx
}

// CompileMessage compiles the instructions with the fee payer as the first account.
func (tx *LegacyTransaction) CompileMessage() (*Message, error) {
	if tx.FeePayer == nil {
		return nil, ErrNoFeePayer
	}
	if len(tx.Instructions) == 0 {
		return nil, ErrNoInstructions
	}
	compiled, err := solanago.NewTransaction(tx.Instructions, tx.RecentBlockhash, solanago.TransactionPayer(*tx.FeePayer))
	if err != nil {
		return nil, fmt.Errorf("compile message: %w", err)
	}
	return &compiled.Message, nil
}

// Signature returns the fee payer signature, or nil if it is absent.
func (tx *LegacyTransaction) Signature() *Signature {
	if len(tx.Signatures) == 0 {
		return nil
	}
	return tx.Signatures[0].Signature
}

// PartialSign signs the compiled message with each signer. Signature slots
// are reset whenever the set of required signers no longer matches.
func (tx *LegacyTransaction) PartialSign(signers ...Signer) error {
	msg, err := tx.CompileMessage()
	if err != nil {
		return err
	}
	payload, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	tx.syncSignatureSlots(requiredSigners(msg))

	seen := make(map[PublicKey]struct{}, len(signers))
	for _, s := range signers {
		key := s.PublicKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		sig, err := s.Sign(payload)
		if err != nil {
			return fmt.Errorf("sign with %s: %w", key, err)
		}
		if err := tx.addSignature(key, sig); err != nil {
			return err
		}
	}
	return nil
}

func (tx *LegacyTransaction) syncSignatureSlots(keys []PublicKey) {
	if len(tx.Signatures) == len(keys) {
		match := true
		for i, pair := range tx.Signatures {
			if !pair.PublicKey.Equals(keys[i]) {
				match = false
				break
			}
		}
		if match {
			return
		}
	}
	tx.Signatures = make([]SignaturePair, len(keys))
	for i, key := range keys {
		tx.Signatures[i] = SignaturePair{PublicKey: key}
	}
}

func (tx *LegacyTransaction) addSignature(key PublicKey, sig Signature) error {
	for i := range tx.Signatures {
		if tx.Signatures[i].PublicKey.Equals(key) {
			s := sig
			tx.Signatures[i].Signature = &s
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownSigner, key)
}

// VersionedTransaction carries a precompiled message. Signatures are
// addressed by the signer's index among the message's static keys.
type VersionedTransaction struct {
	Message    Message
	Signatures []Signature
}

// NewVersionedTransaction wraps msg with one empty signature slot per required signer.
func NewVersionedTransaction(msg Message) *VersionedTransaction {
	return &VersionedTransaction{
		Message:    msg,
		Signatures: make([]Signature, msg.Header.NumRequiredSignatures),
	}
}

func (*VersionedTransaction) isTransaction() {}

// CompileMessage returns the embedded message.
func (tx *VersionedTransaction) CompileMessage() (*Message, error) {
	msg := tx.Message
	return &msg, nil
}

// Sign signs the message with each signer and stores the signature at the
// signer's static key index.
func (tx *VersionedTransaction) Sign(signers ...Signer) error {
	payload, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	keys := requiredSigners(&tx.Message)
	if len(tx.Signatures) != len(keys) {
		sigs := make([]Signature, len(keys))
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}

	for _, s := range signers {
		key := s.PublicKey()
		idx := indexOf(keys, key)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownSigner, key)
		}
		sig, err := s.Sign(payload)
		if err != nil {
			return fmt.Errorf("sign with %s: %w", key, err)
		}
		tx.Signatures[idx] = sig
	}
	return nil
}

// CompileVersionedMessage compiles a v0 message without address lookup tables.
func CompileVersionedMessage(payer PublicKey, blockhash Hash, instructions ...Instruction) (Message, error) {
	if len(instructions) == 0 {
		return Message{}, ErrNoInstructions
	}
	compiled, err := solanago.NewTransaction(instructions, blockhash, solanago.TransactionPayer(payer))
	if err != nil {
		return Message{}, fmt.Errorf("compile message: %w", err)
	}
	msg := compiled.Message
	msg.SetVersion(solanago.MessageVersionV0)
	return msg, nil
}

// Signatures returns the signature slots of tx in message order. Missing
// legacy signatures are returned as zero values.
func Signatures(tx Transaction) []Signature {
	switch t := tx.(type) {
	case *LegacyTransaction:
		out := make([]Signature, len(t.Signatures))
		for i, pair := range t.Signatures {
			if pair.Signature != nil {
				out[i] = *pair.Signature
			}
		}
		return out
	case *VersionedTransaction:
		return append([]Signature(nil), t.Signatures...)
	default:
		return nil
	}
}

// Serialize encodes tx in wire format.
func Serialize(tx Transaction) ([]byte, error) {
	msg, err := tx.CompileMessage()
	if err != nil {
		return nil, err
	}
	wire := solanago.Transaction{
		Signatures: Signatures(tx),
		Message:    *msg,
	}
	data, err := wire.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return data, nil
}

// RequiredSigners returns the keys that must sign msg, in slot order.
func RequiredSigners(msg *Message) []PublicKey {
	return requiredSigners(msg)
}

func requiredSigners(msg *Message) []PublicKey {
	n := int(msg.Header.NumRequiredSignatures)
	if n > len(msg.AccountKeys) {
		n = len(msg.AccountKeys)
	}
	keys := make([]PublicKey, n)
	copy(keys, msg.AccountKeys[:n])
	return keys
}

func indexOf(keys []PublicKey, key PublicKey) int {
	for i, k := range keys {
		if k.Equals(key) {
			return i
		}
	}
	return -1
}
