// Package derive computes deterministic resource identities from seeds, the
// way a host chain addresses per-message or per-emitter accounts.
package derive

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

const (
	MaxSeeds      = solana.MaxSeeds
	MaxSeedLength = solana.MaxSeedLength
)

var ErrInvalidSeeds = errors.New("invalid derivation seeds")

// Identity is an opaque 32 byte resource identity.
type Identity [32]byte

func (id Identity) String() string {
	return fmt.Sprintf("%x", id[:])
}

// Deriver maps seed components onto a resource identity.
type Deriver interface {
	Derive(seeds ...[]byte) (Identity, error)
}

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return fmt.Errorf("%w: %d seeds, at most %d", ErrInvalidSeeds, len(seeds), MaxSeeds)
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return fmt.Errorf("%w: seed %d is %d bytes, at most %d", ErrInvalidSeeds, i, len(s), MaxSeedLength)
		}
	}
	return nil
}

// Keccak derives keccak256(domain || len(seed) || seed ...). Seeds are
// length-prefixed so ("ab", "c") and ("a", "bc") differ.
type Keccak struct {
	Domain []byte
}

func (k Keccak) Derive(seeds ...[]byte) (Identity, error) {
	if err := checkSeeds(seeds); err != nil {
		return Identity{}, err
	}
	parts := make([][]byte, 0, 1+2*len(seeds))
	parts = append(parts, k.Domain)
	for _, s := range seeds {
		parts = append(parts, binary.BigEndian.AppendUint16(nil, uint16(len(s))), s)
	}
	return Identity(crypto.Keccak256Hash(parts...)), nil
}

// SolanaPDA derives program derived addresses of ProgramID.
type SolanaPDA struct {
	ProgramID solana.PublicKey
}

func (p SolanaPDA) Derive(seeds ...[]byte) (Identity, error) {
	if err := checkSeeds(seeds); err != nil {
		return Identity{}, err
	}
	addr, _, err := solana.FindProgramAddress(seeds, p.ProgramID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
	}
	return Identity(addr), nil
}
