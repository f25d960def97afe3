// Package session is the client side of the gateway: it keeps the dialogue
// transcript, decides once per session whether turns are served by a local
// model or the remote gateway, and records translations of past turns.
package session

import (
	"strings"
	"sync"

	"github.com/codyseavey/kaiwa/internal/models"
)

// TranscriptWindow is the maximum number of turns rendered into a transcript.
// The gateway never bounds history itself.
const TranscriptWindow = 50

// ConversationLog is an append-only list of turns.
type ConversationLog struct {
	mu    sync.RWMutex
	turns []models.ConversationTurn
}

// Append adds a turn and returns its index.
func (l *ConversationLog) Append(turn models.ConversationTurn) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turn)
	return len(l.turns) - 1
}

// Len returns the number of turns.
func (l *ConversationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Turn returns the turn at index.
func (l *ConversationLog) Turn(index int) (models.ConversationTurn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.turns) {
		return models.ConversationTurn{}, false
	}
	return l.turns[index], true
}

// Turns returns a copy of every turn, oldest first.
func (l *ConversationLog) Turns() []models.ConversationTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.ConversationTurn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Transcript renders the last TranscriptWindow turns.
func (l *ConversationLog) Transcript() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return RenderTranscript(l.turns, TranscriptWindow)
}

// RenderTranscript renders at most the last window turns, oldest first, one
// "User: ..." or "Assistant: ..." line per turn.
func RenderTranscript(turns []models.ConversationTurn, window int) string {
	if window >= 0 && len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.Speaker() + ": " + t.Content
	}
	return strings.Join(lines, "\n")
}
