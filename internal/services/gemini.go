package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/codyseavey/kaiwa/internal/metrics"
	"github.com/codyseavey/kaiwa/internal/prompt"
)

// ErrGeneratorDisabled is returned by a generator that has no credentials.
var ErrGeneratorDisabled = errors.New("generator not enabled")

// Generator produces raw backend text for a rendered prompt. The text is
// expected to follow the prompt's output shape but is not trusted to.
type Generator interface {
	Generate(ctx context.Context, p prompt.Prompt) (string, error)
}

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxRPS      float64
	Temperature float32
	MaxTokens   int32
	HTTPClient  *http.Client
}

const (
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiTimeout = 15 * time.Second
)

// GeminiService generates replies and translations through the Gemini API.
type GeminiService struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	temp    float32
	tokens  int32
	pacer   *rate.Limiter // nil = unpaced
	enabled bool
}

// NewGeminiService creates the generator. Without an API key the service is
// created disabled and every call returns ErrGeneratorDisabled.
func NewGeminiService(ctx context.Context, cfg GeminiConfig) (*GeminiService, error) {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGeminiTimeout
	}

	svc := &GeminiService{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		temp:    cfg.Temperature,
		tokens:  cfg.MaxTokens,
	}

	if cfg.APIKey == "" {
		infoLog("Gemini service: disabled (no GEMINI_API_KEY)")
		return svc, nil
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	svc.client = client
	svc.enabled = true

	if cfg.MaxRPS > 0 {
		burst := int(cfg.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		svc.pacer = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}

	// Only show first 6 chars of key
	keyPreview := cfg.APIKey
	if len(keyPreview) > 6 {
		keyPreview = keyPreview[:6] + "..."
	}
	infoLog("Gemini service: enabled (model=%s, key=%s, max_rps=%.1f)", cfg.Model, keyPreview, cfg.MaxRPS)

	return svc, nil
}

// IsEnabled returns whether Gemini generation is available
func (s *GeminiService) IsEnabled() bool {
	return s.enabled
}

// Model returns the configured model name.
func (s *GeminiService) Model() string {
	return s.model
}

// Source names Gemini results in the cache and metrics.
func (s *GeminiService) Source() string {
	return SourceGemini
}

// Generate sends the prompt with a response schema derived from its output
// shape and returns the raw response text.
func (s *GeminiService) Generate(ctx context.Context, p prompt.Prompt) (string, error) {
	if !s.enabled {
		return "", ErrGeneratorDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.pacer != nil {
		if err := s.pacer.Wait(ctx); err != nil {
			metrics.GeminiErrorsTotal.WithLabelValues("paced_out").Inc()
			return "", fmt.Errorf("waiting for Gemini send slot: %w", err)
		}
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(p.Shape),
	}
	if s.temp > 0 {
		config.Temperature = genai.Ptr(s.temp)
	}
	if s.tokens > 0 {
		config.MaxOutputTokens = s.tokens
	}

	debugLog("Gemini request: model=%s mode=%s prompt_len=%d", s.model, p.Mode, len(p.Text))

	startTime := time.Now()
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(p.Text), config)
	latency := time.Since(startTime)
	metrics.GeminiAPILatency.Observe(latency.Seconds())

	if err != nil {
		metrics.GeminiErrorsTotal.WithLabelValues(errorReason(ctx, err)).Inc()
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		metrics.GeminiErrorsTotal.WithLabelValues("empty").Inc()
		return "", errors.New("no response from Gemini")
	}

	metrics.GeminiRequestsTotal.WithLabelValues(string(p.Mode)).Inc()
	debugLog("Gemini response: mode=%s latency=%v text=%q", p.Mode, latency, truncate(text, 80))
	return text, nil
}

// responseSchema converts an output shape into the Gemini schema type.
func responseSchema(shape prompt.OutputShape) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			shape.Field: {Type: genai.TypeString},
		},
		Required: []string{shape.Field},
	}
}

func errorReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "api"
	}
}
