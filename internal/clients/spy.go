package clients

import (
	"context"
	"fmt"
	"time"

	publicrpcv1 "github.com/certusone/wormhole/node/pkg/proto/publicrpc/v1"
	spyv1 "github.com/certusone/wormhole/node/pkg/proto/spy/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// EmitterFilter restricts a subscription to one emitter.
type EmitterFilter struct {
	Chain   vaa.ChainID
	Emitter vaa.Address
}

// SpyClient handles connections to the Wormhole spy service
type SpyClient struct {
	conn    *grpc.ClientConn
	client  spyv1.SpyRPCServiceClient
	filters []EmitterFilter
	logger  *zap.Logger
}

// NewSpyClient creates a new client for the Wormhole spy service. With
// filters the spy only streams VAAs from those emitters.
func NewSpyClient(logger *zap.Logger, endpoint string, filters ...EmitterFilter) (*SpyClient, error) {
	client := &SpyClient{
		filters: filters,
		logger:  logger.With(zap.String("component", "SpyClient")),
	}

	client.logger.Info("Connecting to spy service",
		zap.String("endpoint", endpoint),
		zap.Int("filters", len(filters)))
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to spy: %w", err)
	}

	client.conn = conn
	client.client = spyv1.NewSpyRPCServiceClient(conn)
	return client, nil
}

// Close closes the connection to the spy service
func (c *SpyClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Request builds the subscription request for the configured filters.
func (c *SpyClient) Request() *spyv1.SubscribeSignedVAARequest {
	req := &spyv1.SubscribeSignedVAARequest{}
	for _, f := range c.filters {
		req.Filters = append(req.Filters, &spyv1.FilterEntry{
			Filter: &spyv1.FilterEntry_EmitterFilter{
				EmitterFilter: &spyv1.EmitterFilter{
					ChainId:        publicrpcv1.ChainID(f.Chain),
					EmitterAddress: f.Emitter.String(),
				},
			},
		})
	}
	return req
}

// SubscribeSignedVAA subscribes to signed VAAs with retry logic
func (c *SpyClient) SubscribeSignedVAA(ctx context.Context) (spyv1.SpyRPCService_SubscribeSignedVAAClient, error) {
	const maxRetries = 5
	const retryDelay = 2 * time.Second

	c.logger.Debug("Subscribing to signed VAAs")

	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		var stream spyv1.SpyRPCService_SubscribeSignedVAAClient
		stream, err = c.client.SubscribeSignedVAA(ctx, c.Request())
		if err == nil {
			return stream, nil
		}

		if attempt < maxRetries {
			c.logger.Warn("Subscribe attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
				zap.Duration("retryIn", retryDelay))

			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("failed to subscribe after %d attempts: %w", maxRetries, err)
}
