package session

import (
	"context"
	"errors"
	"fmt"
)

// DefaultErrorReply is shown as the assistant turn when no reply could be produced.
const DefaultErrorReply = "申し訳ありません。エラーが発生しました。Please try reloading the page."

var ErrEmptyMessage = errors.New("message is empty")

// Conversational produces the next assistant turn.
type Conversational interface {
	Reply(ctx context.Context, message, transcript string) (string, error)
	Name() string
}

// Translator renders Japanese text in English.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
	Name() string
}

// GatewayError is a non-200 answer from the gateway.
type GatewayError struct {
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// RateLimited reports whether the gateway refused the request for rate limiting.
func (e *GatewayError) RateLimited() bool {
	return e.Status == 429
}
