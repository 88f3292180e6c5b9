package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/bridge"
	"github.com/wormhole-demo/corebridge/internal/governance"
	"github.com/wormhole-demo/corebridge/internal/replay"
	"github.com/wormhole-demo/corebridge/internal/submitter"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

type VAAData struct {
	VAA      *vaa.VAA // The parsed VAA
	RawBytes []byte   // Raw VAA bytes
}

type VAAProcessor interface {
	// ProcessVAA processes the given VAA and returns the delivery reference or an error
	ProcessVAA(ctx context.Context, vaaData VAAData) (string, error)
}

// Host accepts VAAs: verification, replay protection and governance.
type Host interface {
	Submit(ctx context.Context, raw []byte, now time.Time, opts ...bridge.SubmitOption) (*bridge.Result, error)
}

type VAAProcessorConfig struct {
	// Chains lists the source chains to accept; empty accepts all.
	Chains []vaa.ChainID
	// EmitterAddress, when set, is the only emitter accepted.
	EmitterAddress *vaa.Address
	// Governance, when set, is accepted regardless of Chains and
	// EmitterAddress.
	Governance *governance.Authority
	// Timeout bounds the handling of a single VAA.
	Timeout time.Duration
}

type DefaultVAAProcessor struct {
	config    VAAProcessorConfig
	host      Host
	submitter submitter.VAASubmitter
	now       func() time.Time
	logger    *zap.Logger
}

// NewDefaultVAAProcessor submits matching VAAs to host and forwards the
// accepted, non-governance ones through submitter. A nil submitter only
// records them.
func NewDefaultVAAProcessor(logger *zap.Logger, config VAAProcessorConfig, host Host, submitter submitter.VAASubmitter) *DefaultVAAProcessor {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	return &DefaultVAAProcessor{
		config:    config,
		host:      host,
		submitter: submitter,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "DefaultVAAProcessor")),
	}
}

func (p *DefaultVAAProcessor) matches(v *vaa.VAA) bool {
	if p.config.Governance != nil && p.config.Governance.Is(&v.Body) {
		return true
	}
	if len(p.config.Chains) > 0 {
		found := false
		for _, c := range p.config.Chains {
			if c == v.EmitterChain {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return p.config.EmitterAddress == nil || *p.config.EmitterAddress == v.EmitterAddress
}

func (p *DefaultVAAProcessor) ProcessVAA(ctx context.Context, vaaData VAAData) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	v := vaaData.VAA
	if !p.matches(v) {
		p.logger.Debug("Skipping VAA (not from configured emitter)",
			zap.Uint16("emitterChain", uint16(v.EmitterChain)),
			zap.String("emitterAddress", v.EmitterAddress.String()),
			zap.Uint64("sequence", v.Sequence))
		return "", nil
	}

	result, err := p.host.Submit(ctx, vaaData.RawBytes, p.now())
	if errors.Is(err, replay.ErrAlreadyClaimed) {
		p.logger.Debug("Skipping VAA (already processed)", zap.String("messageID", v.MessageID()))
		return "", nil
	}
	if err != nil {
		p.logger.Warn("Rejected VAA",
			zap.String("messageID", v.MessageID()),
			zap.Uint32("guardianSetIndex", v.GuardianSetIndex),
			zap.Error(err))
		return "", fmt.Errorf("rejected VAA %s: %w", v.MessageID(), err)
	}

	if result.Governance != nil {
		p.logger.Info("Governance VAA applied",
			zap.String("messageID", v.MessageID()),
			zap.String("action", result.Governance.String()))
		return "", nil
	}

	p.logger.Info("Accepted VAA",
		zap.String("messageID", v.MessageID()),
		zap.String("digest", result.Digest.Hex()),
		zap.Int("signers", len(result.Signers)))
	if p.submitter == nil {
		return "", nil
	}

	ref, err := p.submitter.SubmitVAA(ctx, vaaData.RawBytes)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Warn("Forwarding cancelled or timed out", zap.Error(ctx.Err()))
			return "", fmt.Errorf("forwarding interrupted: %w", ctx.Err())
		}
		p.logger.Error("Failed to forward VAA",
			zap.String("messageID", v.MessageID()),
			zap.Error(err))
		return "", fmt.Errorf("forwarding failed: %w", err)
	}

	p.logger.Info("VAA forwarded",
		zap.String("messageID", v.MessageID()),
		zap.String("reference", ref))
	return ref, nil
}
