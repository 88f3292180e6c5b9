// Package sequencer hands out per-emitter sequence numbers for published
// messages.
package sequencer

import (
	"fmt"

	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// Storage persists the next sequence of each emitter. NextSequence returns
// 0 for an emitter it has never seen.
type Storage interface {
	NextSequence(emitter vaa.Address) (uint64, error)
	SetNextSequence(emitter vaa.Address, next uint64) error
}

// Sequencer assigns sequences on top of a Storage, within one unit of work.
type Sequencer struct {
	store Storage
}

func New(store Storage) *Sequencer {
	return &Sequencer{store: store}
}

// Next returns the sequence for the emitter's next message. The first
// message of an emitter gets 1.
func (s *Sequencer) Next(emitter vaa.Address) (uint64, error) {
	next, err := s.store.NextSequence(emitter)
	if err != nil {
		return 0, fmt.Errorf("load sequence of %s: %w", emitter, err)
	}
	if next == 0 {
		next = 1
	}
	if next == ^uint64(0) {
		return 0, fmt.Errorf("sequence of %s exhausted", emitter)
	}
	if err := s.store.SetNextSequence(emitter, next+1); err != nil {
		return 0, fmt.Errorf("store sequence of %s: %w", emitter, err)
	}
	return next, nil
}

// Peek returns the sequence Next would assign without consuming it.
func (s *Sequencer) Peek(emitter vaa.Address) (uint64, error) {
	next, err := s.store.NextSequence(emitter)
	if err != nil {
		return 0, err
	}
	if next == 0 {
		next = 1
	}
	return next, nil
}
