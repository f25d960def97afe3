package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codyseavey/kaiwa/internal/models"
)

const defaultRemoteTimeout = 30 * time.Second

// RemoteBackend sends turns to the gateway's /api/chat endpoint.
type RemoteBackend struct {
	endpoint string
	client   *http.Client
}

// NewRemoteBackend creates a backend for the gateway at baseURL.
func NewRemoteBackend(baseURL string, client *http.Client) *RemoteBackend {
	if client == nil {
		client = &http.Client{Timeout: defaultRemoteTimeout}
	}
	return &RemoteBackend{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/chat",
		client:   client,
	}
}

func (b *RemoteBackend) Name() string { return "remote" }

// Reply asks the gateway for the next conversation turn.
func (b *RemoteBackend) Reply(ctx context.Context, message, transcript string) (string, error) {
	return b.post(ctx, models.ChatRequest{
		Message:             message,
		ConversationHistory: transcript,
	})
}

// Translate asks the gateway for an English translation.
func (b *RemoteBackend) Translate(ctx context.Context, text string) (string, error) {
	return b.post(ctx, models.ChatRequest{
		Message:       text,
		IsTranslation: true,
	})
}

func (b *RemoteBackend) post(ctx context.Context, body models.ChatRequest) (string, error) {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp models.ErrorResponse
		if json.Unmarshal(data, &errResp) != nil || errResp.Error == "" {
			errResp.Error = strings.TrimSpace(string(data))
		}
		return "", &GatewayError{Status: resp.StatusCode, Message: errResp.Error}
	}

	var chatResp models.ChatResponse
	if err := json.Unmarshal(data, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse gateway response: %w", err)
	}
	if chatResp.Response == "" {
		return "", fmt.Errorf("gateway returned an empty response")
	}
	return chatResp.Response, nil
}
