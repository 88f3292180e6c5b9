package clients

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// WebhookRequest is the body posted for every forwarded VAA.
type WebhookRequest struct {
	VAABytes         string `json:"vaaBytes"`
	EmitterChain     uint16 `json:"emitterChain"`
	EmitterAddress   string `json:"emitterAddress"`
	Sequence         uint64 `json:"sequence"`
	Digest           string `json:"digest"`
	GuardianSetIndex uint32 `json:"guardianSetIndex"`
}

type WebhookResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WebhookClient hands accepted VAAs to an HTTP payload consumer.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWebhookClient(logger *zap.Logger, url string) *WebhookClient {
	return &WebhookClient{
		url: strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With(zap.String("component", "WebhookClient")),
	}
}

// HexBytes encodes b as 0x-prefixed hex.
func HexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// Post sends req and returns the consumer's reference for it (a transaction
// hash, for example).
func (c *WebhookClient) Post(ctx context.Context, req WebhookRequest) (string, error) {
	c.logger.Debug("Posting VAA to webhook",
		zap.Uint16("emitterChain", req.EmitterChain),
		zap.Uint64("sequence", req.Sequence))

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal webhook request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send webhook request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read webhook response: %w", err)
	}

	c.logger.Debug("Received webhook response", zap.Int("statusCode", resp.StatusCode))

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	// consumers may answer with an empty body
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}

	var response WebhookResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal webhook response: %w", err)
	}
	if !response.Success {
		return "", fmt.Errorf("webhook rejected VAA: %s", response.Error)
	}
	return response.TxHash, nil
}

// CheckHealth calls GET <url>/health.
func (c *WebhookClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
