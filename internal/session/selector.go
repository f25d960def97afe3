package session

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/codyseavey/kaiwa/internal/models"
)

const defaultProbeTimeout = 3 * time.Second

// SelectorConfig describes the candidate backends for a session.
type SelectorConfig struct {
	GatewayURL        string
	OllamaURL         string
	ConversationModel string // empty disables local conversation
	TranslationModel  string // empty disables local translation
	ProbeTimeout      time.Duration
	HTTPClient        *http.Client
}

// Select probes the local capabilities once each and returns a session bound
// to the chosen backends. Unavailable capabilities fall back to the gateway
// and are not probed again for the life of the session.
func Select(ctx context.Context, cfg SelectorConfig) *Session {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	remote := NewRemoteBackend(cfg.GatewayURL, cfg.HTTPClient)

	var conversation Conversational = remote
	if local, err := probeLocal(ctx, cfg, cfg.ConversationModel); err == nil {
		conversation = local
	} else {
		log.Printf("Local conversation model unavailable, using gateway: %v", err)
	}

	var translator Translator = remote
	if local, err := probeLocal(ctx, cfg, cfg.TranslationModel); err == nil {
		translator = local
	} else {
		log.Printf("Local translator unavailable, using gateway: %v", err)
	}

	log.Printf("Session backends: conversation=%s translation=%s", conversation.Name(), translator.Name())
	return NewSession(conversation, translator)
}

func probeLocal(ctx context.Context, cfg SelectorConfig, model string) (*LocalBackend, error) {
	if model == "" {
		return nil, fmt.Errorf("no local model configured")
	}
	local := NewLocalBackend(cfg.OllamaURL, model, cfg.HTTPClient)

	probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()
	if err := local.Probe(probeCtx); err != nil {
		return nil, err
	}
	return local, nil
}

// Session is one dialogue: its log, its backends and the translations made so far.
type Session struct {
	log          ConversationLog
	conversation Conversational
	translator   Translator

	mu           sync.Mutex
	translations map[int]string
}

// NewSession creates a session with fixed backends.
func NewSession(conversation Conversational, translator Translator) *Session {
	return &Session{
		conversation: conversation,
		translator:   translator,
		translations: make(map[int]string),
	}
}

// Backends returns the names of the conversation and translation backends.
func (s *Session) Backends() (conversation, translation string) {
	return s.conversation.Name(), s.translator.Name()
}

// Log returns the session's conversation log.
func (s *Session) Log() *ConversationLog {
	return &s.log
}

// Send records the user's turn and the assistant's reply and returns the reply.
// The transcript sent along covers the turns before this message. When the
// backend fails the default error reply is recorded and returned with the error.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	transcript := s.log.Transcript()
	s.log.Append(models.ConversationTurn{Content: text, IsUser: true})

	reply, err := s.conversation.Reply(ctx, text, transcript)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err == nil {
			err = fmt.Errorf("%s backend returned an empty reply", s.conversation.Name())
		}
		reply = DefaultErrorReply
	}

	s.log.Append(models.ConversationTurn{Content: reply, IsUser: false})
	return reply, err
}

// Translate returns the English rendering of the turn at index, asking the
// translator only the first time.
func (s *Session) Translate(ctx context.Context, index int) (string, error) {
	turn, ok := s.log.Turn(index)
	if !ok {
		return "", fmt.Errorf("no turn at index %d", index)
	}

	s.mu.Lock()
	cached, ok := s.translations[index]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	translated, err := s.translator.Translate(ctx, turn.Content)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.translations[index] = translated
	s.mu.Unlock()
	return translated, nil
}

// Translation returns a translation recorded earlier for the turn at index.
func (s *Session) Translation(index int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.translations[index]
	return t, ok
}
