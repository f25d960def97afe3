// Package prompt renders the instruction text sent to a generation backend and
// declares the structured output each request mode expects back.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/codyseavey/kaiwa/internal/models"
)

// ErrMalformedOutput is returned when backend text does not match the expected shape.
var ErrMalformedOutput = errors.New("malformed backend output")

// OutputShape is an object with a single required string field.
type OutputShape struct {
	Name  string
	Field string
}

var (
	ReplyShape       = OutputShape{Name: "reply", Field: "reply"}
	TranslationShape = OutputShape{Name: "translation", Field: "translation"}
)

// Prompt is the rendered instruction plus the shape the answer must take.
type Prompt struct {
	Mode    models.RequestMode
	Message string // the caller's message, for backends that take raw input
	Text    string
	Shape   OutputShape
}

const conversationTemplate = `あなたは日本語の会話パートナーです。以下の会話履歴を参考にして、学生と日本語で会話を続けてください。質問に答えたり、会話を進めたりしてください。返答は日本語のみで書いてください。

会話履歴:
%s

学生: %s

Reply in this structured format:
{ "reply": "<your next line in Japanese>" }`

const translationTemplate = `Translate the following Japanese text to English:

%s

Reply in this structured format:
{ "translation": "<the English translation>" }`

// Build renders the prompt for mode. Translation ignores the transcript.
func Build(mode models.RequestMode, message, transcript string) Prompt {
	if mode == models.ModeTranslation {
		return Prompt{
			Mode:    mode,
			Message: message,
			Text:    fmt.Sprintf(translationTemplate, message),
			Shape:   TranslationShape,
		}
	}
	return Prompt{
		Mode:    models.ModeConversation,
		Message: message,
		Text:    fmt.Sprintf(conversationTemplate, transcript, message),
		Shape:   ReplyShape,
	}
}

// JSONSchema renders the shape as a JSON schema object.
func (s OutputShape) JSONSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			s.Field: map[string]interface{}{"type": "string"},
		},
		"required": []string{s.Field},
	}
}

// Render marshals value into the shape, for backends that return plain text.
func (s OutputShape) Render(value string) string {
	b, _ := json.Marshal(map[string]string{s.Field: value})
	return string(b)
}

// Parse extracts the shape's field from raw backend text. The text must be a
// JSON object, optionally inside a markdown code fence, whose field is a
// non-empty string.
func (s OutputShape) Parse(raw string) (string, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return "", fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	value, ok := obj[s.Field]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedOutput, s.Field)
	}

	var out string
	if err := json.Unmarshal(value, &out); err != nil {
		return "", fmt.Errorf("%w: field %q is not a string", ErrMalformedOutput, s.Field)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: field %q is empty", ErrMalformedOutput, s.Field)
	}
	return out, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
