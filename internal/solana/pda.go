package solana

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

var (
	// ErrNoViableBump is returned when no bump seed yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

	// ErrInvalidSeeds is returned when seeds hash to a point on the curve or break length limits.
	ErrInvalidSeeds = errors.New("invalid seeds, address must fall off the curve")
)

// CreateProgramAddress derives the address for exactly these seeds.
// Seeds usually end with the bump returned by FindProgramAddress.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	if len(seeds) > maxSeeds {
		return PublicKey{}, ErrInvalidSeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return PublicKey{}, ErrInvalidSeeds
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var key PublicKey
	copy(key[:], h.Sum(nil))
	if IsOnCurve(key[:]) {
		return PublicKey{}, ErrInvalidSeeds
	}
	return key, nil
}

// FindProgramAddress derives a program address and its bump seed.
// Bumps are tried from 255 downward until the hash is off the ed25519 curve.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	if len(seeds) >= maxSeeds {
		return PublicKey{}, 0, ErrInvalidSeeds
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return PublicKey{}, 0, ErrInvalidSeeds
		}
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		if key, err := CreateProgramAddress(withBump, programID); err == nil {
			return key, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether b encodes a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
