// Package bridge is the host side of the core: it runs verification, replay
// protection, governance and publishing against a storage.Store, one unit of
// work per message.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/derive"
	"github.com/wormhole-demo/corebridge/internal/governance"
	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/replay"
	"github.com/wormhole-demo/corebridge/internal/storage"
	"github.com/wormhole-demo/corebridge/internal/validate"
	"github.com/wormhole-demo/corebridge/internal/vaa"
	"github.com/wormhole-demo/corebridge/internal/verifier"
)

var (
	ErrBankUnderflow          = errors.New("fee transfer exceeds collected fees")
	ErrInvalidGovernanceSet   = errors.New("governance not signed by the current guardian set")
	ErrInsufficientFee        = errors.New("insufficient message fee")
	ErrChainAlreadyRegistered = errors.New("emitter already registered for chain")
	ErrInvalidRegistration    = errors.New("invalid chain registration")
	ErrUnregisteredEmitter    = errors.New("emitter not registered")
)

// Config holds the deployment constants of a bridge.
type Config struct {
	// ChainID is the chain this bridge runs on.
	ChainID    vaa.ChainID
	Governance governance.Authority
	// GuardianSetExpiry is how long a superseded guardian set stays valid.
	GuardianSetExpiry time.Duration
	// ParallelRecovery bounds concurrent signature recovery; below 2 is
	// sequential.
	ParallelRecovery int
	// RequireRegistration rejects non-governance messages from emitters
	// that no RegisterChain action has bound.
	RequireRegistration bool
	// ClaimOwner, when set, is the owner claim resources must have.
	ClaimOwner derive.Identity
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ChainID, validation.Required),
		validation.Field(&c.GuardianSetExpiry, validation.Min(time.Duration(0))),
		validation.Field(&c.ParallelRecovery, validation.Min(0)),
	)
}

// PayloadHandler consumes the payload of an accepted, non-governance
// message. It runs inside the unit of work that claims the message: an
// error rolls the claim back.
type PayloadHandler interface {
	HandlePayload(ctx context.Context, tx storage.Tx, msg *verifier.Verified) error
}

// PayloadHandlerFunc adapts a function to PayloadHandler.
type PayloadHandlerFunc func(ctx context.Context, tx storage.Tx, msg *verifier.Verified) error

func (f PayloadHandlerFunc) HandlePayload(ctx context.Context, tx storage.Tx, msg *verifier.Verified) error {
	return f(ctx, tx, msg)
}

type Bridge struct {
	logger   *zap.Logger
	cfg      Config
	store    storage.Store
	verifier *verifier.Verifier
	handler  PayloadHandler
	claims   derive.Deriver
}

type Option func(*Bridge)

// WithPayloadHandler sets the consumer of accepted payloads.
func WithPayloadHandler(h PayloadHandler) Option {
	return func(b *Bridge) { b.handler = h }
}

// WithClaimDeriver sets how claim resource identities are derived from a
// replay key. The default is keccak256 in the "claim" domain.
func WithClaimDeriver(d derive.Deriver) Option {
	return func(b *Bridge) { b.claims = d }
}

func New(logger *zap.Logger, cfg Config, store storage.Store, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bridge config: %w", err)
	}
	if cfg.Governance == (governance.Authority{}) {
		cfg.Governance = governance.DefaultAuthority
	}
	if cfg.GuardianSetExpiry == 0 {
		cfg.GuardianSetExpiry = guardianset.DefaultExpiry
	}

	b := &Bridge{
		logger:   logger.With(zap.String("component", "Bridge")),
		cfg:      cfg,
		store:    store,
		verifier: verifier.New(cfg.ParallelRecovery),
		claims:   derive.Keccak{Domain: []byte("claim")},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Config returns the effective configuration.
func (b *Bridge) Config() Config {
	return b.cfg
}

func (b *Bridge) registry(tx storage.Tx) *guardianset.Registry {
	return guardianset.NewRegistry(tx, b.cfg.GuardianSetExpiry)
}

// Bootstrap installs the genesis guardian set. It fails once any set exists.
func (b *Bridge) Bootstrap(ctx context.Context, index uint32, keys []common.Address) (*guardianset.GuardianSet, error) {
	var gs *guardianset.GuardianSet
	err := b.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		gs, err = b.registry(tx).Bootstrap(index, keys)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.logger.Info("Installed genesis guardian set",
		zap.Uint32("guardianSetIndex", gs.Index),
		zap.Int("guardians", len(gs.Keys)),
		zap.Int("quorum", gs.Quorum()))
	return gs, nil
}

// ParseAndVerify decodes raw and verifies it without claiming it.
func (b *Bridge) ParseAndVerify(ctx context.Context, raw []byte, now time.Time) (*verifier.Verified, error) {
	v, err := vaa.Unmarshal(raw)
	if err != nil {
		return nil, err
	}

	var verified *verifier.Verified
	err = b.store.View(ctx, func(tx storage.Tx) error {
		verified, err = b.verifier.Verify(v, b.registry(tx), now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}

// Result describes an accepted message.
type Result struct {
	*verifier.Verified
	// Governance is set when the message was a governance action.
	Governance *governance.Message
}

type submitOptions struct {
	claim *validate.Handle
}

type SubmitOption func(*submitOptions)

// WithClaimHandle checks h against the rules for the message's claim
// resource before claiming: derived from the replay key, writable and not
// yet initialised.
func WithClaimHandle(h validate.Handle) SubmitOption {
	return func(o *submitOptions) { o.claim = &h }
}

// Submit verifies raw, claims it and applies it: governance messages are
// executed, anything else is handed to the payload handler. A payload that
// decodes as a governance action but was not sent by the authority fails
// with governance.ErrInvalidGovernanceKey. Nothing is committed unless every
// step succeeds.
func (b *Bridge) Submit(ctx context.Context, raw []byte, now time.Time, opts ...SubmitOption) (*Result, error) {
	v, err := vaa.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	if b.cfg.Governance.Is(&v.Body) {
		return b.executeGovernance(ctx, v, now, opts...)
	}

	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	var verified *verifier.Verified
	err = b.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		verified, err = b.verifier.Verify(v, b.registry(tx), now)
		if err != nil {
			return err
		}
		// governance actions are only honoured from the authority
		if _, err := governance.Decode(verified.Payload); err == nil {
			return b.cfg.Governance.Check(&verified.Body)
		}
		if b.cfg.RequireRegistration {
			registered, err := tx.Registered(verified.EmitterChain, verified.EmitterAddress)
			if err != nil {
				return err
			}
			if !registered {
				return fmt.Errorf("%w: %d/%s", ErrUnregisteredEmitter, verified.EmitterChain, verified.EmitterAddress)
			}
		}
		if err := b.claim(tx, replay.KeyFor(&verified.Body), now, o); err != nil {
			return err
		}
		if b.handler != nil {
			return b.handler.HandlePayload(ctx, tx, verified)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("Accepted VAA",
		zap.Uint16("emitterChain", uint16(verified.EmitterChain)),
		zap.String("emitterAddress", verified.EmitterAddress.String()),
		zap.Uint64("sequence", verified.Sequence),
		zap.Uint32("guardianSetIndex", verified.GuardianSetIndex))
	return &Result{Verified: verified}, nil
}

func (b *Bridge) claim(tx storage.Tx, key replay.Key, now time.Time, o submitOptions) error {
	if o.claim != nil {
		rules := []validate.Rule{
			validate.Derived(b.claims, key.Seeds()...),
			validate.Mutable(),
			validate.Uninitialized(),
		}
		if b.cfg.ClaimOwner != (derive.Identity{}) {
			rules = append(rules, validate.Owned(b.cfg.ClaimOwner))
		}
		if err := validate.Check(o.claim, rules...); err != nil {
			return err
		}
	}
	return replay.NewGuard(tx).Claim(key, now)
}

// ClaimIdentity returns the identity of the claim resource for key.
func (b *Bridge) ClaimIdentity(key replay.Key) (derive.Identity, error) {
	return b.claims.Derive(key.Seeds()...)
}
