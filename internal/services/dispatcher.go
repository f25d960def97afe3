package services

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/codyseavey/kaiwa/internal/metrics"
	"github.com/codyseavey/kaiwa/internal/models"
	"github.com/codyseavey/kaiwa/internal/prompt"
	"github.com/codyseavey/kaiwa/internal/ratelimit"
)

const (
	MethodNotAllowedMessage = "Method not allowed"
	BackendFailureMessage   = "Failed to get a response from the language model"
)

// Outcome is the HTTP-shaped result of one chat request.
// Body is a models.ChatResponse on success and a models.ErrorResponse otherwise.
type Outcome struct {
	Status     int
	Body       interface{}
	RetryAfter time.Duration
}

// DispatcherConfig wires the dispatcher's collaborators. Only Limiter and
// Conversation are required.
type DispatcherConfig struct {
	Limiter             *ratelimit.Limiter
	Conversation        Generator
	Translation         Generator // defaults to Conversation
	TranslationFallback Generator // tried when Translation fails, may be nil
	Cache               *TranslationCacheService
}

// sourced is implemented by generators that name themselves in the
// translation cache and metrics.
type sourced interface {
	Source() string
}

func sourceOf(gen Generator) string {
	if s, ok := gen.(sourced); ok {
		return s.Source()
	}
	return SourceGenerator
}

// Dispatcher runs a chat request through admission, prompt rendering,
// generation and output validation.
type Dispatcher struct {
	limiter    *ratelimit.Limiter
	generators map[models.RequestMode]Generator
	fallback   Generator
	cache      *TranslationCacheService
	now        func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	translation := cfg.Translation
	if translation == nil {
		translation = cfg.Conversation
	}
	return &Dispatcher{
		limiter: cfg.Limiter,
		generators: map[models.RequestMode]Generator{
			models.ModeConversation: cfg.Conversation,
			models.ModeTranslation:  translation,
		},
		fallback: cfg.TranslationFallback,
		cache:    cfg.Cache,
		now:      time.Now,
	}
}

// Handle processes one request from identity. Rejections before generation
// (wrong method, rate limited) never reach a backend.
func (d *Dispatcher) Handle(ctx context.Context, method string, req models.ChatRequest, identity string) Outcome {
	mode := req.Mode()
	out := d.handle(ctx, method, req, mode, identity)
	metrics.ChatRequestsTotal.WithLabelValues(string(mode), strconv.Itoa(out.Status)).Inc()
	return out
}

func (d *Dispatcher) handle(ctx context.Context, method string, req models.ChatRequest, mode models.RequestMode, identity string) Outcome {
	if method != http.MethodPost {
		return Outcome{
			Status: http.StatusMethodNotAllowed,
			Body:   models.ErrorResponse{Error: MethodNotAllowedMessage},
		}
	}

	decision := d.limiter.Admit(identity, d.now())
	if !decision.Allowed() {
		debugLog("Rate limited: request_id=%s identity=%s result=%s retry_after=%s",
			RequestIDFromContext(ctx), identity, decision.Result, decision.RetryAfter)
		return Outcome{
			Status:     http.StatusTooManyRequests,
			Body:       models.ErrorResponse{Error: decision.Message},
			RetryAfter: decision.RetryAfter,
		}
	}

	p := prompt.Build(mode, req.Message, req.ConversationHistory)

	if mode == models.ModeTranslation {
		if cached, ok := d.cache.Get(req.Message); ok {
			return success(cached)
		}
	}

	text, source, err := d.generate(ctx, p)
	if err != nil {
		infoLog("Generation failed: request_id=%s mode=%s identity=%s input=%q: %v",
			RequestIDFromContext(ctx), mode, identity, truncate(req.Message, 30), err)
		return Outcome{
			Status: http.StatusInternalServerError,
			Body:   models.ErrorResponse{Error: BackendFailureMessage},
		}
	}

	if mode == models.ModeTranslation {
		metrics.TranslationRequestsTotal.WithLabelValues(source).Inc()
		if err := d.cache.Set(req.Message, text, source); err != nil {
			infoLog("Failed to cache translation: request_id=%s: %v", RequestIDFromContext(ctx), err)
		}
	}

	return success(text)
}

// generate asks the mode's generator and validates the output shape. In
// translation mode a failed or malformed answer falls through to the fallback.
func (d *Dispatcher) generate(ctx context.Context, p prompt.Prompt) (string, string, error) {
	primary := d.generators[p.Mode]
	text, err := runGenerator(ctx, primary, p)
	if err == nil {
		return text, sourceOf(primary), nil
	}

	if p.Mode != models.ModeTranslation || d.fallback == nil || ctx.Err() != nil {
		return "", "", err
	}

	infoLog("Translation falling back to %s: request_id=%s: %v", sourceOf(d.fallback), RequestIDFromContext(ctx), err)
	text, fbErr := runGenerator(ctx, d.fallback, p)
	if fbErr != nil {
		return "", "", fbErr
	}
	return text, sourceOf(d.fallback), nil
}

func runGenerator(ctx context.Context, gen Generator, p prompt.Prompt) (string, error) {
	if gen == nil {
		return "", ErrGeneratorDisabled
	}
	raw, err := gen.Generate(ctx, p)
	if err != nil {
		return "", err
	}
	text, err := p.Shape.Parse(raw)
	if err != nil {
		debugLog("Rejected backend output: %q", truncate(raw, 120))
		return "", err
	}
	return text, nil
}

func success(text string) Outcome {
	return Outcome{
		Status: http.StatusOK,
		Body:   models.ChatResponse{Response: text},
	}
}
