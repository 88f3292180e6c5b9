package bridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/governance"
	"github.com/wormhole-demo/corebridge/internal/replay"
	"github.com/wormhole-demo/corebridge/internal/storage"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// ExecuteGovernance verifies raw as a governance VAA and applies its action.
//
// The VAA must pass quorum verification against the current guardian set,
// come from the governance emitter and target this chain (or every chain).
// The claim and the action commit together.
func (b *Bridge) ExecuteGovernance(ctx context.Context, raw []byte, now time.Time, opts ...SubmitOption) (*Result, error) {
	v, err := vaa.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	return b.executeGovernance(ctx, v, now, opts...)
}

func (b *Bridge) executeGovernance(ctx context.Context, v *vaa.VAA, now time.Time, opts ...SubmitOption) (*Result, error) {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	result := &Result{}
	err := b.store.Update(ctx, func(tx storage.Tx) error {
		reg := b.registry(tx)
		verified, err := b.verifier.Verify(v, reg, now)
		if err != nil {
			return err
		}
		result.Verified = verified

		if err := b.cfg.Governance.Check(&verified.Body); err != nil {
			return err
		}
		current, err := reg.Current()
		if err != nil {
			return err
		}
		if verified.GuardianSetIndex != current.Index {
			return fmt.Errorf("%w: signed by set %d, current is %d", ErrInvalidGovernanceSet, verified.GuardianSetIndex, current.Index)
		}

		msg, err := governance.Decode(verified.Payload)
		if err != nil {
			return err
		}
		if err := msg.CheckChain(b.cfg.ChainID); err != nil {
			return err
		}
		result.Governance = msg

		if err := b.claim(tx, replay.KeyFor(&verified.Body), now, o); err != nil {
			return err
		}
		return b.apply(tx, msg, now)
	})
	if err != nil {
		if result.Governance != nil {
			b.logger.Warn("Rejected governance action",
				zap.String("action", result.Governance.String()),
				zap.Error(err))
		}
		return nil, err
	}

	b.logger.Info("Applied governance action",
		zap.String("action", result.Governance.String()),
		zap.Uint64("sequence", result.Sequence),
		zap.Uint32("guardianSetIndex", result.GuardianSetIndex))
	return result, nil
}

func (b *Bridge) apply(tx storage.Tx, msg *governance.Message, now time.Time) error {
	switch a := msg.Action.(type) {
	case governance.GuardianSetChange:
		if err := msg.CheckModule(governance.ModuleCore); err != nil {
			return err
		}
		_, err := b.registry(tx).Rotate(a.NewIndex, a.Keys, now)
		return err

	case governance.SetMessageFee:
		if err := msg.CheckModule(governance.ModuleCore); err != nil {
			return err
		}
		return tx.SetMessageFee(a.Fee)

	case governance.TransferFees:
		if err := msg.CheckModule(governance.ModuleCore); err != nil {
			return err
		}
		bank, err := tx.FeeBalance()
		if err != nil {
			return err
		}
		if a.Amount.Gt(bank) {
			return fmt.Errorf("%w: transfer %s, balance %s", ErrBankUnderflow, a.Amount.Dec(), bank.Dec())
		}
		return tx.SetFeeBalance(bank.Sub(bank, a.Amount))

	case governance.ContractUpgrade:
		return tx.SetUpgradeTarget(msg.Module, a.NewContract)

	case governance.RegisterChain:
		if err := msg.CheckModule(governance.ModuleTokenBridge); err != nil {
			return err
		}
		if a.Chain == vaa.ChainIDUnset || a.Chain == b.cfg.ChainID {
			return fmt.Errorf("%w: cannot register chain %d", ErrInvalidRegistration, a.Chain)
		}
		registered, err := tx.Registered(a.Chain, a.Emitter)
		if err != nil {
			return err
		}
		if registered {
			return fmt.Errorf("%w: %d/%s", ErrChainAlreadyRegistered, a.Chain, a.Emitter)
		}
		return tx.PutRegistration(storage.Registration{Chain: a.Chain, Emitter: a.Emitter, RegisteredAt: now})

	default:
		return fmt.Errorf("%w: %s", governance.ErrInvalidGovernanceAction, msg.Action.Name())
	}
}
