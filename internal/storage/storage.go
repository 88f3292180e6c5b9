// Package storage persists bridge state: guardian sets, claims, emitter
// sequences, fees, upgrade targets and chain registrations.
//
// All access goes through a unit of work. Update runs a function against a
// Tx and commits its writes only if it returns nil; concurrent updates are
// serialised, so a verify-then-claim sequence in one Update can never
// interleave with another claim of the same key.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/holiman/uint256"

	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/replay"
	"github.com/wormhole-demo/corebridge/internal/sequencer"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

var (
	ErrReadOnly = errors.New("write in read-only transaction")
	ErrClosed   = errors.New("store closed")
)

// Registration is a foreign emitter bound to a chain.
type Registration struct {
	Chain        vaa.ChainID
	Emitter      vaa.Address
	RegisteredAt time.Time
}

// Tx is the view of the state inside one unit of work.
type Tx interface {
	guardianset.Storage
	replay.Storage
	sequencer.Storage

	// MessageFee and FeeBalance return zero before they are first set.
	MessageFee() (*uint256.Int, error)
	SetMessageFee(fee *uint256.Int) error
	FeeBalance() (*uint256.Int, error)
	SetFeeBalance(balance *uint256.Int) error

	UpgradeTarget(module string) (target vaa.Address, ok bool, err error)
	SetUpgradeTarget(module string, target vaa.Address) error

	Registered(chain vaa.ChainID, emitter vaa.Address) (bool, error)
	PutRegistration(r Registration) error
	Registrations() ([]Registration, error)
}

// Store runs units of work.
type Store interface {
	// Update runs fn in a read-write unit of work.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn in a read-only unit of work; writes fail with ErrReadOnly.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

type registrationKey struct {
	chain   vaa.ChainID
	emitter vaa.Address
}
