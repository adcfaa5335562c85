package solana

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// Signer produces ed25519 signatures for a single public key.
type Signer interface {
	PublicKey() PublicKey
	Sign(message []byte) (Signature, error)
}

// Keypair is a Signer backed by an in-memory private key.
type Keypair struct {
	key PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	key, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{key: key}, nil
}

// MustNewKeypair is like NewKeypair but panics on error.
func MustNewKeypair() *Keypair {
	kp, err := NewKeypair()
	if err != nil {
		panic(err)
	}
	return kp
}

// KeypairFromPrivateKey wraps an existing private key.
func KeypairFromPrivateKey(key PrivateKey) *Keypair {
	return &Keypair{key: key}
}

// KeypairFromFile loads a solana-keygen JSON keypair file.
func KeypairFromFile(path string) (*Keypair, error) {
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return &Keypair{key: key}, nil
}

// PublicKey returns the keypair's public key.
func (k *Keypair) PublicKey() PublicKey {
	return k.key.PublicKey()
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) (Signature, error) {
	return k.key.Sign(message)
}

// Wallet is the primary signer of a provider.
type Wallet interface {
	PublicKey() PublicKey
	SignTransaction(tx Transaction) (Transaction, error)
}

// KeypairWallet is a Wallet backed by a single keypair.
type KeypairWallet struct {
	payer Signer
}

// NewKeypairWallet creates a wallet that signs with payer.
func NewKeypairWallet(payer Signer) *KeypairWallet {
	return &KeypairWallet{payer: payer}
}

// PublicKey returns the payer's public key.
func (w *KeypairWallet) PublicKey() PublicKey {
	return w.payer.PublicKey()
}

// Payer returns the underlying signer.
func (w *KeypairWallet) Payer() Signer {
	return w.payer
}

// SignTransaction signs tx in place and returns it.
func (w *KeypairWallet) SignTransaction(tx Transaction) (Transaction, error) {
	switch t := tx.(type) {
	case *LegacyTransaction:
		if err := t.PartialSign(w.payer); err != nil {
			return nil, err
		}
	case *VersionedTransaction:
		if err := t.Sign(w.payer); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported transaction type %T", tx)
	}
	return tx, nil
}
