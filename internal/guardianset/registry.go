package guardianset

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Storage persists guardian sets. GuardianSet returns (nil, nil) for an
// unknown index; CurrentIndex returns ok=false before the first set exists.
type Storage interface {
	GuardianSet(index uint32) (*GuardianSet, error)
	PutGuardianSet(gs *GuardianSet) error
	CurrentGuardianSetIndex() (index uint32, ok bool, err error)
	SetCurrentGuardianSetIndex(index uint32) error
}

// Registry applies the guardian set rules on top of a Storage. A Registry is
// meant to live for one unit of work: callers build it over a transaction so
// a rotation either fully commits or not at all.
type Registry struct {
	store  Storage
	expiry time.Duration
}

// NewRegistry returns a registry over store. A non-positive expiry selects
// DefaultExpiry.
func NewRegistry(store Storage, expiry time.Duration) *Registry {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Registry{store: store, expiry: expiry}
}

// Get returns the set with the given index.
func (r *Registry) Get(index uint32) (*GuardianSet, error) {
	gs, err := r.store.GuardianSet(index)
	if err != nil {
		return nil, fmt.Errorf("load guardian set %d: %w", index, err)
	}
	if gs == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGuardianSetIndex, index)
	}
	return gs, nil
}

// Current returns the active set.
func (r *Registry) Current() (*GuardianSet, error) {
	index, ok, err := r.store.CurrentGuardianSetIndex()
	if err != nil {
		return nil, fmt.Errorf("load current guardian set index: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no guardian set installed", ErrInvalidGuardianSetIndex)
	}
	return r.Get(index)
}

// Bootstrap installs the first guardian set. It fails once any set exists.
func (r *Registry) Bootstrap(index uint32, keys []common.Address) (*GuardianSet, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	if _, ok, err := r.store.CurrentGuardianSetIndex(); err != nil {
		return nil, fmt.Errorf("load current guardian set index: %w", err)
	} else if ok {
		return nil, ErrAlreadyBootstrapped
	}

	gs := (&GuardianSet{Index: index, Keys: keys}).Clone()
	if err := r.store.PutGuardianSet(gs); err != nil {
		return nil, fmt.Errorf("store guardian set %d: %w", index, err)
	}
	if err := r.store.SetCurrentGuardianSetIndex(index); err != nil {
		return nil, fmt.Errorf("store current guardian set index: %w", err)
	}
	return gs, nil
}

// Rotate replaces the active set with a new one at newIndex, which must be
// exactly the current index plus one. The previous set expires at
// now + expiry.
func (r *Registry) Rotate(newIndex uint32, keys []common.Address, now time.Time) (*GuardianSet, error) {
	current, err := r.Current()
	if err != nil {
		return nil, err
	}
	if current.Index == ^uint32(0) || newIndex != current.Index+1 {
		return nil, fmt.Errorf("%w: current %d, requested %d", ErrInvalidGovernanceSetIndex, current.Index, newIndex)
	}
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	if existing, err := r.store.GuardianSet(newIndex); err != nil {
		return nil, fmt.Errorf("load guardian set %d: %w", newIndex, err)
	} else if existing != nil {
		return nil, fmt.Errorf("%w: set %d already exists", ErrInvalidGovernanceSetIndex, newIndex)
	}

	retired := current.Clone()
	retired.ExpirationTime = now.Round(0).Add(r.expiry)
	if err := r.store.PutGuardianSet(retired); err != nil {
		return nil, fmt.Errorf("expire guardian set %d: %w", retired.Index, err)
	}

	next := (&GuardianSet{Index: newIndex, Keys: keys}).Clone()
	if err := r.store.PutGuardianSet(next); err != nil {
		return nil, fmt.Errorf("store guardian set %d: %w", newIndex, err)
	}
	if err := r.store.SetCurrentGuardianSetIndex(newIndex); err != nil {
		return nil, fmt.Errorf("store current guardian set index: %w", err)
	}
	return next, nil
}
