package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/replay"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

type memState struct {
	sets          map[uint32]*guardianset.GuardianSet
	current       *uint32
	claims        map[replay.Key]time.Time
	sequences     map[vaa.Address]uint64
	fee           *uint256.Int
	bank          *uint256.Int
	upgrades      map[string]vaa.Address
	registrations map[registrationKey]time.Time
}

func newMemState() *memState {
	return &memState{
		sets:          map[uint32]*guardianset.GuardianSet{},
		claims:        map[replay.Key]time.Time{},
		sequences:     map[vaa.Address]uint64{},
		upgrades:      map[string]vaa.Address{},
		registrations: map[registrationKey]time.Time{},
	}
}

func (s *memState) apply(w *memState) {
	for k, v := range w.sets {
		s.sets[k] = v
	}
	if w.current != nil {
		s.current = w.current
	}
	for k, v := range w.claims {
		s.claims[k] = v
	}
	for k, v := range w.sequences {
		s.sequences[k] = v
	}
	if w.fee != nil {
		s.fee = w.fee
	}
	if w.bank != nil {
		s.bank = w.bank
	}
	for k, v := range w.upgrades {
		s.upgrades[k] = v
	}
	for k, v := range w.registrations {
		s.registrations[k] = v
	}
}

// MemoryStore keeps state in process memory. Update holds an exclusive lock
// for the whole unit of work and buffers writes until fn succeeds.
type MemoryStore struct {
	mu     sync.RWMutex
	state  *memState
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{base: s.state, writes: newMemState()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state.apply(tx.writes)
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{base: s.state, readOnly: true})
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memTx struct {
	base     *memState
	writes   *memState
	readOnly bool
}

func (tx *memTx) writable() error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (tx *memTx) GuardianSet(index uint32) (*guardianset.GuardianSet, error) {
	if tx.writes != nil {
		if gs, ok := tx.writes.sets[index]; ok {
			return gs.Clone(), nil
		}
	}
	if gs, ok := tx.base.sets[index]; ok {
		return gs.Clone(), nil
	}
	return nil, nil
}

func (tx *memTx) PutGuardianSet(gs *guardianset.GuardianSet) error {
	if err := tx.writable(); err != nil {
		return err
	}
	tx.writes.sets[gs.Index] = gs.Clone()
	return nil
}

func (tx *memTx) CurrentGuardianSetIndex() (uint32, bool, error) {
	if tx.writes != nil && tx.writes.current != nil {
		return *tx.writes.current, true, nil
	}
	if tx.base.current != nil {
		return *tx.base.current, true, nil
	}
	return 0, false, nil
}

func (tx *memTx) SetCurrentGuardianSetIndex(index uint32) error {
	if err := tx.writable(); err != nil {
		return err
	}
	tx.writes.current = &index
	return nil
}

func (tx *memTx) Claimed(key replay.Key) (bool, error) {
	if tx.writes != nil {
		if _, ok := tx.writes.claims[key]; ok {
			return true, nil
		}
	}
	_, ok := tx.base.claims[key]
	return ok, nil
}

func (tx *memTx) MarkClaimed(key replay.Key, at time.Time) error {
	if err := tx.writable(); err != nil {
		return err
	}
	tx.writes.claims[key] = at
	return nil
}

func (tx *memTx) NextSequence(emitter vaa.Address) (uint64, error) {
	if tx.writes != nil {
		if next, ok := tx.writes.sequences[emitter]; ok {
			return next, nil
		}
	}
	return tx.base.sequences[emitter], nil
}

func (tx *memTx) SetNextSequence(emitter vaa.Address, next uint64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	tx.writes.sequences[emitter] = next
	return nil
}

func (tx *memTx) amount(pick func(*memState) *uint256.Int) *uint256.Int {
	if tx.writes != nil {
		if v := pick(tx.writes); v != nil {
			return v.Clone()
		}
	}
	if v := pick(tx.base); v != nil {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (tx *memTx) MessageFee() (*uint256.Int, error) {
	return tx.amount(func(s *memState) *uint256.Int { return s.fee }), nil
}

func (tx *memTx) SetMessageFee(fee *uint256.Int) error {
	if err := tx.writable(); err != nil {
		return err
	}
	tx.writes.fee = fee.Clone()
	return nil
}

func (tx *memTx) FeeBalance() (*uint256.Int, error) {
	return tx.amount(func(s *memState) *uint256.Int { return s.bank }), nil
}

func (tx *memTx) SetFeeBalance(balance *uint256.Int) error {
	if err := tx.writable(); err != nil {
		return err
	}
	tx.writes.bank = balance.Clone()
	return nil
}

func (tx *memTx) UpgradeTarget(module string) (vaa.Address, bool, error) {
	if tx.writes != nil {
		if target, ok := tx.writes.upgrades[module]; ok {
			return target, true, nil
		}
	}
	target, ok := tx.base.upgrades[module]
	return target, ok, nil
}

func (tx *memTx) SetUpgradeTarget(module string, target vaa.Address) error {
	if err := tx.writable(); err != nil {
		return err
	}
	tx.writes.upgrades[module] = target
	return nil
}

func (tx *memTx) Registered(chain vaa.ChainID, emitter vaa.Address) (bool, error) {
	key := registrationKey{chain: chain, emitter: emitter}
	if tx.writes != nil {
		if _, ok := tx.writes.registrations[key]; ok {
			return true, nil
		}
	}
	_, ok := tx.base.registrations[key]
	return ok, nil
}

func (tx *memTx) PutRegistration(r Registration) error {
	if err := tx.writable(); err != nil {
		return err
	}
	tx.writes.registrations[registrationKey{chain: r.Chain, emitter: r.Emitter}] = r.RegisteredAt
	return nil
}

func (tx *memTx) Registrations() ([]Registration, error) {
	merged := map[registrationKey]time.Time{}
	for k, v := range tx.base.registrations {
		merged[k] = v
	}
	if tx.writes != nil {
		for k, v := range tx.writes.registrations {
			merged[k] = v
		}
	}

	out := make([]Registration, 0, len(merged))
	for k, v := range merged {
		out = append(out, Registration{Chain: k.chain, Emitter: k.emitter, RegisteredAt: v})
	}
	sortRegistrations(out)
	return out, nil
}

func sortRegistrations(rs []Registration) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Chain != rs[j].Chain {
			return rs[i].Chain < rs[j].Chain
		}
		return bytes.Compare(rs[i].Emitter[:], rs[j].Emitter[:]) < 0
	})
}
