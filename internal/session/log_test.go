package session

import (
	"fmt"
	"strings"
	"testing"

	"github.com/codyseavey/kaiwa/internal/models"
)

func TestRenderTranscript(t *testing.T) {
	turns := []models.ConversationTurn{
		{Content: "こんにちは", IsUser: true},
		{Content: "こんにちは！元気ですか？", IsUser: false},
		{Content: "元気です", IsUser: true},
	}

	got := RenderTranscript(turns, TranscriptWindow)
	want := "User: こんにちは\nAssistant: こんにちは！元気ですか？\nUser: 元気です"
	if got != want {
		t.Errorf("RenderTranscript() = %q, want %q", got, want)
	}

	if RenderTranscript(nil, TranscriptWindow) != "" {
		t.Error("empty log should render an empty transcript")
	}
}

func TestConversationLog_TranscriptWindow(t *testing.T) {
	tests := []struct {
		turns     int
		wantLines int
	}{
		{0, 0},
		{1, 1},
		{49, 49},
		{50, 50},
		{51, 50},
		{120, 50},
		{1000, 50},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d turns", tt.turns), func(t *testing.T) {
			var log ConversationLog
			for i := 0; i < tt.turns; i++ {
				log.Append(models.ConversationTurn{Content: fmt.Sprintf("turn %d", i), IsUser: i%2 == 0})
			}

			transcript := log.Transcript()
			lines := 0
			if transcript != "" {
				lines = len(strings.Split(transcript, "\n"))
			}
			if lines != tt.wantLines {
				t.Fatalf("expected %d lines, got %d", tt.wantLines, lines)
			}

			if tt.turns > TranscriptWindow {
				first := strings.Split(transcript, "\n")[0]
				wantFirst := fmt.Sprintf("turn %d", tt.turns-TranscriptWindow)
				if !strings.HasSuffix(first, wantFirst) {
					t.Errorf("window should keep the most recent turns, first line %q", first)
				}
				if !strings.HasSuffix(transcript, fmt.Sprintf("turn %d", tt.turns-1)) {
					t.Error("window should end with the newest turn")
				}
			}
		})
	}
}

func TestConversationLog_TurnsAreCopies(t *testing.T) {
	var log ConversationLog
	idx := log.Append(models.ConversationTurn{Content: "はい", IsUser: true})
	if idx != 0 {
		t.Fatalf("expected index 0, got %d", idx)
	}

	turns := log.Turns()
	turns[0].Content = "changed"

	if got, _ := log.Turn(0); got.Content != "はい" {
		t.Error("appended turns must not be modified through Turns()")
	}
	if _, ok := log.Turn(5); ok {
		t.Error("out of range index should report false")
	}
}
