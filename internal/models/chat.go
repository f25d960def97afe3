package models

// RequestMode selects the prompt template and the expected output shape of a request.
type RequestMode string

const (
	ModeConversation RequestMode = "conversation"
	ModeTranslation  RequestMode = "translation"
)

// ModeFor maps the isTranslation flag of a chat request to its mode.
func ModeFor(isTranslation bool) RequestMode {
	if isTranslation {
		return ModeTranslation
	}
	return ModeConversation
}

// ChatRequest is the body accepted by POST /api/chat.
// ConversationHistory is an already-bounded transcript rendered by the client.
type ChatRequest struct {
	Message             string `json:"message"`
	ConversationHistory string `json:"conversationHistory"`
	IsTranslation       bool   `json:"isTranslation,omitempty"`
}

// Mode returns the request mode carried by this request.
func (r ChatRequest) Mode() RequestMode {
	return ModeFor(r.IsTranslation)
}

// ChatResponse is the only success payload, regardless of mode.
// Conversation mode carries the next Japanese turn, translation mode an English rendering.
type ChatResponse struct {
	Response string `json:"response"`
}

// ErrorResponse is returned for every non-2xx outcome.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConversationTurn is one message of a session. It is never modified after being appended.
type ConversationTurn struct {
	Content string `json:"content"`
	IsUser  bool   `json:"is_user"`
}

// Speaker returns the transcript label for the turn.
func (t ConversationTurn) Speaker() string {
	if t.IsUser {
		return "User"
	}
	return "Assistant"
}
