// Package replay records which messages have been consumed so each one is
// acted upon at most once.
package replay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/wormhole-demo/corebridge/internal/vaa"
)

var ErrAlreadyClaimed = errors.New("message already claimed")

// Key identifies a message independently of its payload.
type Key struct {
	EmitterChain   vaa.ChainID
	EmitterAddress vaa.Address
	Sequence       uint64
}

// KeyFor returns the replay key of body.
func KeyFor(body *vaa.Body) Key {
	return Key{
		EmitterChain:   body.EmitterChain,
		EmitterAddress: body.EmitterAddress,
		Sequence:       body.Sequence,
	}
}

// Seeds returns the key as derivation seeds: emitter address, chain and
// sequence, integers big-endian.
func (k Key) Seeds() [][]byte {
	chain := make([]byte, 2)
	binary.BigEndian.PutUint16(chain, uint16(k.EmitterChain))
	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, k.Sequence)
	return [][]byte{k.EmitterAddress.Bytes(), chain, seq}
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%d", k.EmitterChain, k.EmitterAddress, k.Sequence)
}

// Storage persists claim markers.
type Storage interface {
	Claimed(key Key) (bool, error)
	MarkClaimed(key Key, at time.Time) error
}

// Guard claims keys on top of a Storage. Like guardianset.Registry it is
// built over a single unit of work; the claim commits together with the
// effect of the message or not at all.
type Guard struct {
	store Storage
}

func NewGuard(store Storage) *Guard {
	return &Guard{store: store}
}

// Claim marks key consumed. A key that is already consumed fails with
// ErrAlreadyClaimed.
func (g *Guard) Claim(key Key, now time.Time) error {
	claimed, err := g.store.Claimed(key)
	if err != nil {
		return fmt.Errorf("load claim %s: %w", key, err)
	}
	if claimed {
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, key)
	}
	if err := g.store.MarkClaimed(key, now); err != nil {
		return fmt.Errorf("store claim %s: %w", key, err)
	}
	return nil
}

// Claimed reports whether key has been consumed.
func (g *Guard) Claimed(key Key) (bool, error) {
	return g.store.Claimed(key)
}
