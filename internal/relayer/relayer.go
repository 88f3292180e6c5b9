// Package relayer streams signed VAAs from a spy, runs each through the
// bridge and forwards the accepted ones.
package relayer

import (
	"context"
	"fmt"
	"sync"
	"time"

	spyv1 "github.com/certusone/wormhole/node/pkg/proto/spy/v1"
	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// Subscriber opens a stream of signed VAAs.
type Subscriber interface {
	SubscribeSignedVAA(ctx context.Context) (spyv1.SpyRPCService_SubscribeSignedVAAClient, error)
}

type Relayer struct {
	spyClient    Subscriber
	vaaProcessor VAAProcessor
	retryDelay   time.Duration
	logger       *zap.Logger
}

// NewRelayer creates a new relayer instance
func NewRelayer(logger *zap.Logger, spyClient Subscriber, processor VAAProcessor) *Relayer {
	return &Relayer{
		logger:       logger.With(zap.String("component", "Relayer")),
		spyClient:    spyClient,
		vaaProcessor: processor,
		retryDelay:   5 * time.Second,
	}
}

// Start listens for VAAs and processes each in its own goroutine until ctx
// is cancelled. In-flight VAAs are allowed to finish before it returns.
func (r *Relayer) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	defer func() {
		r.logger.Info("Waiting for all VAA processing to complete")
		wg.Wait()
		r.logger.Info("Shutdown complete")
	}()

	stream, err := r.spyClient.SubscribeSignedVAA(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to VAA stream: %w", err)
	}

	r.logger.Info("Listening for VAAs")

	processingCtx, cancelProcessing := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelProcessing()

	for {
		resp, err := stream.Recv()
		if ctx.Err() != nil {
			r.logger.Info("Shutting down relayer")
			return nil
		}
		if err != nil {
			r.logger.Warn("Stream error, retrying", zap.Error(err), zap.Duration("retryIn", r.retryDelay))
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				r.logger.Info("Shutting down relayer")
				return nil
			}
			stream, err = r.spyClient.SubscribeSignedVAA(ctx)
			if err != nil {
				return fmt.Errorf("subscribe to VAA stream after retry: %w", err)
			}
			continue
		}

		wg.Add(1)
		go func(vaaBytes []byte) {
			defer wg.Done()
			r.processVAA(processingCtx, vaaBytes)
		}(resp.VaaBytes)
	}
}

func (r *Relayer) processVAA(ctx context.Context, vaaBytes []byte) {
	v, err := vaa.Unmarshal(vaaBytes)
	if err != nil {
		r.logger.Error("Failed to parse VAA", zap.Error(err))
		return
	}

	r.logger.Debug("Processing VAA",
		zap.Uint16("emitterChain", uint16(v.EmitterChain)),
		zap.String("emitterAddress", v.EmitterAddress.String()),
		zap.Uint64("sequence", v.Sequence))

	if _, err := r.vaaProcessor.ProcessVAA(ctx, VAAData{VAA: v, RawBytes: vaaBytes}); err != nil {
		r.logger.Error("Error processing VAA",
			zap.String("messageID", v.MessageID()),
			zap.Error(err))
	}
}
