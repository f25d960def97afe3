package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/codyseavey/kaiwa/internal/models"
	"github.com/codyseavey/kaiwa/internal/prompt"
)

const (
	DefaultOllamaURL    = "http://localhost:11434"
	defaultLocalTimeout = 60 * time.Second
)

// firstObject matches the first flat JSON object in free-form model output.
var firstObject = regexp.MustCompile(`(?s)\{.*?\}`)

// LocalBackend generates with a model served by a local Ollama instance.
// The same backend type serves conversation or translation depending on the
// model it is created for.
type LocalBackend struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaGenerateRequest struct {
	Model  string                 `json:"model"`
	Prompt string                 `json:"prompt"`
	Stream bool                   `json:"stream"`
	Format map[string]interface{} `json:"format,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// NewLocalBackend creates a backend for model on the Ollama server at baseURL.
func NewLocalBackend(baseURL, model string, client *http.Client) *LocalBackend {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultLocalTimeout}
	}
	return &LocalBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

func (b *LocalBackend) Name() string { return "local:" + b.model }

// Probe checks that the server answers and has the model pulled.
func (b *LocalBackend) Probe(ctx context.Context) error {
	if b.model == "" {
		return fmt.Errorf("no local model configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("local model server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("local model server returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("failed to decode model list: %w", err)
	}

	for _, m := range tags.Models {
		for _, name := range []string{m.Name, m.Model} {
			if name == b.model || name == b.model+":latest" {
				return nil
			}
		}
	}
	return fmt.Errorf("model %q is not available locally", b.model)
}

// Reply generates the next conversation turn. The answer must carry the
// { "reply": ... } object.
func (b *LocalBackend) Reply(ctx context.Context, message, transcript string) (string, error) {
	return b.generate(ctx, prompt.Build(models.ModeConversation, message, transcript))
}

// Translate renders text in English. The answer must carry the
// { "translation": ... } object.
func (b *LocalBackend) Translate(ctx context.Context, text string) (string, error) {
	return b.generate(ctx, prompt.Build(models.ModeTranslation, text, ""))
}

func (b *LocalBackend) generate(ctx context.Context, p prompt.Prompt) (string, error) {
	reqJSON, err := json.Marshal(ollamaGenerateRequest{
		Model:  b.model,
		Prompt: p.Text,
		Stream: false,
		Format: p.Shape.JSONSchema(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("local generation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("local model server returned status %d: %s", resp.StatusCode, string(body))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("local model error: %s", out.Error)
	}

	return parseLocalOutput(p.Shape, out.Response)
}

// parseLocalOutput accepts the whole output as the shape, or else the first
// JSON object embedded in surrounding text.
func parseLocalOutput(shape prompt.OutputShape, raw string) (string, error) {
	text, err := shape.Parse(raw)
	if err == nil {
		return text, nil
	}
	if match := firstObject.FindString(raw); match != "" {
		if text, embeddedErr := shape.Parse(match); embeddedErr == nil {
			return text, nil
		}
	}
	return "", err
}
