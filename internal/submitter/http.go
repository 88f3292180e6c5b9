package submitter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/clients"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// HTTPSubmitter posts VAAs to a webhook consumer.
type HTTPSubmitter struct {
	webhook *clients.WebhookClient
	logger  *zap.Logger
}

func NewHTTPSubmitter(logger *zap.Logger, webhook *clients.WebhookClient) *HTTPSubmitter {
	return &HTTPSubmitter{
		webhook: webhook,
		logger:  logger.With(zap.String("component", "HTTPSubmitter")),
	}
}

func (s *HTTPSubmitter) SubmitVAA(ctx context.Context, vaaBytes []byte) (string, error) {
	v, err := vaa.Unmarshal(vaaBytes)
	if err != nil {
		return "", err
	}
	body := v.Body.Marshal()

	ref, err := s.webhook.Post(ctx, clients.WebhookRequest{
		VAABytes:         clients.HexBytes(vaaBytes),
		EmitterChain:     uint16(v.EmitterChain),
		EmitterAddress:   v.EmitterAddress.String(),
		Sequence:         v.Sequence,
		Digest:           vaa.SigningDigest(body).Hex(),
		GuardianSetIndex: v.GuardianSetIndex,
	})
	if err != nil {
		return "", fmt.Errorf("failed to post VAA: %w", err)
	}

	s.logger.Info("VAA delivered to webhook",
		zap.String("messageID", v.MessageID()),
		zap.String("reference", ref))
	return ref, nil
}
