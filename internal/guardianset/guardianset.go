// Package guardianset keeps the versioned sequence of guardian sets used to
// verify VAAs.
//
// Exactly one set is active (its ExpirationTime is zero). A set superseded by
// a rotation stays usable for verification until its expiration passes, so
// VAAs signed moments before a rotation still verify.
package guardianset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxGuardians is the largest set addressable by the u8 signature position.
const MaxGuardians = 255

// DefaultExpiry is the grace period a superseded set stays valid for.
const DefaultExpiry = 24 * time.Hour

var (
	ErrInvalidGuardianSetIndex   = errors.New("invalid guardian set index")
	ErrGuardianSetExpired        = errors.New("guardian set expired")
	ErrInvalidGovernanceSetIndex = errors.New("invalid governance guardian set index")
	ErrEmptyGuardianSet          = errors.New("guardian set has no keys")
	ErrAlreadyBootstrapped       = errors.New("guardian set registry already initialised")
)

// GuardianSet is one version of the guardian set.
type GuardianSet struct {
	Index uint32
	// Keys are the guardian addresses; a guardian's position in Keys is the
	// index it signs with.
	Keys []common.Address
	// ExpirationTime is zero while the set is active.
	ExpirationTime time.Time
}

// Quorum returns the number of signatures required for a set of n guardians:
// floor(2n/3) + 1.
func Quorum(n int) int {
	return (n*2)/3 + 1
}

// Quorum returns the number of signatures this set requires.
func (gs *GuardianSet) Quorum() int {
	return Quorum(len(gs.Keys))
}

// Active reports whether this is the current (never superseded) set.
func (gs *GuardianSet) Active() bool {
	return gs.ExpirationTime.IsZero()
}

// Expired reports whether the set can no longer be used at time now.
func (gs *GuardianSet) Expired(now time.Time) bool {
	return !gs.ExpirationTime.IsZero() && !gs.ExpirationTime.After(now)
}

// KeyIndex returns the position of addr in the set.
func (gs *GuardianSet) KeyIndex(addr common.Address) (int, bool) {
	for i, k := range gs.Keys {
		if k == addr {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy of gs.
func (gs *GuardianSet) Clone() *GuardianSet {
	keys := make([]common.Address, len(gs.Keys))
	copy(keys, gs.Keys)
	return &GuardianSet{Index: gs.Index, Keys: keys, ExpirationTime: gs.ExpirationTime}
}

func (gs *GuardianSet) String() string {
	return fmt.Sprintf("guardian set %d (%d keys, quorum %d)", gs.Index, len(gs.Keys), gs.Quorum())
}

// Source reads guardian sets published by an existing deployment, for
// example a core contract on another chain.
type Source interface {
	CurrentGuardianSetIndex(ctx context.Context) (uint32, error)
	GuardianSet(ctx context.Context, index uint32) (*GuardianSet, error)
}

func validateKeys(keys []common.Address) error {
	if len(keys) == 0 {
		return ErrEmptyGuardianSet
	}
	if len(keys) > MaxGuardians {
		return fmt.Errorf("guardian set has %d keys, at most %d allowed", len(keys), MaxGuardians)
	}
	return nil
}
