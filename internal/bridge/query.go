package bridge

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/wormhole-demo/corebridge/internal/governance"
	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/replay"
	"github.com/wormhole-demo/corebridge/internal/sequencer"
	"github.com/wormhole-demo/corebridge/internal/storage"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// State is a snapshot of the bridge state.
type State struct {
	GuardianSet   *guardianset.GuardianSet
	MessageFee    *uint256.Int
	FeeBalance    *uint256.Int
	Upgrades      map[string]vaa.Address
	Registrations []storage.Registration
}

// GuardianSet returns the guardian set with the given index.
func (b *Bridge) GuardianSet(ctx context.Context, index uint32) (*guardianset.GuardianSet, error) {
	var gs *guardianset.GuardianSet
	err := b.store.View(ctx, func(tx storage.Tx) error {
		var err error
		gs, err = b.registry(tx).Get(index)
		return err
	})
	return gs, err
}

// CurrentGuardianSet returns the active guardian set.
func (b *Bridge) CurrentGuardianSet(ctx context.Context) (*guardianset.GuardianSet, error) {
	var gs *guardianset.GuardianSet
	err := b.store.View(ctx, func(tx storage.Tx) error {
		var err error
		gs, err = b.registry(tx).Current()
		return err
	})
	return gs, err
}

// Claimed reports whether the message with key has been consumed.
func (b *Bridge) Claimed(ctx context.Context, key replay.Key) (bool, error) {
	var claimed bool
	err := b.store.View(ctx, func(tx storage.Tx) error {
		var err error
		claimed, err = replay.NewGuard(tx).Claimed(key)
		return err
	})
	return claimed, err
}

// NextSequence returns the sequence the emitter's next message will get.
func (b *Bridge) NextSequence(ctx context.Context, emitter []byte) (uint64, error) {
	var next uint64
	err := b.store.View(ctx, func(tx storage.Tx) error {
		var err error
		next, err = sequencer.New(tx).Peek(vaa.EmitterAddressFor(emitter))
		return err
	})
	return next, err
}

// State returns the current guardian set, fees, upgrade targets and
// registrations.
func (b *Bridge) State(ctx context.Context) (*State, error) {
	st := &State{Upgrades: map[string]vaa.Address{}}
	err := b.store.View(ctx, func(tx storage.Tx) error {
		var err error
		if st.GuardianSet, err = b.registry(tx).Current(); err != nil {
			return err
		}
		if st.MessageFee, err = tx.MessageFee(); err != nil {
			return err
		}
		if st.FeeBalance, err = tx.FeeBalance(); err != nil {
			return err
		}
		for _, module := range []string{governance.ModuleCore, governance.ModuleTokenBridge} {
			target, ok, err := tx.UpgradeTarget(module)
			if err != nil {
				return err
			}
			if ok {
				st.Upgrades[module] = target
			}
		}
		st.Registrations, err = tx.Registrations()
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
