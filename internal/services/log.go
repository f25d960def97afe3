package services

import (
	"context"
	"log"
	"os"
	"strings"
)

var chatDebugEnabled = false

type requestIDKey struct{}

// WithRequestID attaches the HTTP request id to ctx so dispatcher logs can be
// matched to the X-Request-ID response header.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "-".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return "-"
}

func init() {
	// Enable debug logging if CHAT_DEBUG=1, true or yes
	if v := os.Getenv("CHAT_DEBUG"); v != "" {
		v = strings.ToLower(v)
		SetDebug(v == "1" || v == "true" || v == "yes")
	}
}

// SetDebug toggles verbose per-request logging.
func SetDebug(enabled bool) {
	if enabled && !chatDebugEnabled {
		log.Println("[CHAT] Debug logging: ENABLED")
	}
	chatDebugEnabled = enabled
}

// debugLog logs only when debug logging is enabled.
// Use this for prompts, raw backend output, cache hits/misses, etc.
func debugLog(format string, args ...interface{}) {
	if chatDebugEnabled {
		log.Printf("[CHAT DEBUG] "+format, args...)
	}
}

// infoLog always logs.
// Use this for backend failures, fallbacks and service startup.
func infoLog(format string, args ...interface{}) {
	log.Printf("[CHAT] "+format, args...)
}

// truncate shortens s to n runes for log lines.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
