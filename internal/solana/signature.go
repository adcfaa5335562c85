package solana

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// SignatureID returns the base-58 identifier of a transaction signature.
func SignatureID(sig Signature) string {
	return base58.Encode(sig[:])
}

// ParseSignatureID decodes a base-58 transaction identifier.
func ParseSignatureID(id string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(id)
	if err != nil {
		return sig, fmt.Errorf("decode signature %q: %w", id, err)
	}
	if len(raw) != len(sig) {
		return sig, fmt.Errorf("signature %q: expected %d bytes, got %d", id, len(sig), len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}

// ParsePublicKey decodes a base-58 public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var key PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return key, fmt.Errorf("decode public key %q: %w", s, err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("public key %q: expected %d bytes, got %d", s, len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// MustPublicKey is like ParsePublicKey but panics on error.
func MustPublicKey(s string) PublicKey {
	key, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return key
}
