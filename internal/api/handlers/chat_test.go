package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/kaiwa/internal/middleware"
	"github.com/codyseavey/kaiwa/internal/models"
	"github.com/codyseavey/kaiwa/internal/prompt"
	"github.com/codyseavey/kaiwa/internal/ratelimit"
	"github.com/codyseavey/kaiwa/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeGenerator answers every prompt in its expected shape.
type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (g *fakeGenerator) Generate(_ context.Context, p prompt.Prompt) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	if p.Shape == prompt.TranslationShape {
		return p.Shape.Render("Hello"), nil
	}
	return p.Shape.Render("こんにちは！今日はどうでしたか？"), nil
}

func newTestRouter(limiter *ratelimit.Limiter, gen services.Generator, adminKey string) *gin.Engine {
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{})
	}
	dispatcher := services.NewDispatcher(services.DispatcherConfig{
		Limiter:      limiter,
		Conversation: gen,
	})

	router := gin.New()
	RegisterRoutes(router,
		NewChatHandler(dispatcher, 1024),
		NewAdminHandler(limiter, services.NewTranslationCacheService(nil, 0)),
		adminKey)
	return router
}

func postChat(router *gin.Engine, body string, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChat_ConversationEndToEnd(t *testing.T) {
	router := newTestRouter(nil, &fakeGenerator{}, "")

	w := postChat(router, `{"message": "こんにちは", "conversationHistory": "", "isTranslation": false}`, "203.0.113.1")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp) != 1 {
		t.Errorf("expected a single response field, got %v", resp)
	}
	text, ok := resp["response"].(string)
	if !ok || text == "" {
		t.Errorf("expected non-empty response string, got %v", resp["response"])
	}
}

func TestChat_TranslationReturnsSingleStringField(t *testing.T) {
	router := newTestRouter(nil, &fakeGenerator{}, "")

	w := postChat(router, `{"message": "こんにちは", "conversationHistory": "", "isTranslation": true}`, "203.0.113.1")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp models.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Response != "Hello" {
		t.Errorf("expected the translation field value, got %q", resp.Response)
	}
	if strings.Contains(resp.Response, "{") {
		t.Error("response must never be the unparsed backend text")
	}
}

func TestChat_MethodNotAllowed(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{})
	gen := &fakeGenerator{}
	router := newTestRouter(limiter, gen, "")

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, "/api/chat", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", method, w.Code)
		}
		if got := w.Header().Get("Allow"); got != http.MethodPost {
			t.Errorf("%s: expected Allow: POST, got %q", method, got)
		}
		if !strings.Contains(w.Body.String(), "Method not allowed") {
			t.Errorf("%s: unexpected body %s", method, w.Body.String())
		}
	}

	if limiter.TrackedClients() != 0 || gen.calls != 0 {
		t.Error("non-POST requests must not reach the limiter or the backend")
	}
}

func TestChat_RateLimited(t *testing.T) {
	gen := &fakeGenerator{}
	router := newTestRouter(ratelimit.New(ratelimit.Config{ClientLimit: 30}), gen, "")

	for i := 0; i < 30; i++ {
		if w := postChat(router, `{"message": "hi"}`, "198.51.100.4"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := postChat(router, `{"message": "hi"}`, "198.51.100.4")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != ratelimit.ClientLimitMessage {
		t.Errorf("unexpected error %q", resp.Error)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 || retryAfter > 60 {
		t.Errorf("expected Retry-After between 1 and 60, got %q", w.Header().Get("Retry-After"))
	}
	if gen.calls != 30 {
		t.Errorf("denied request must not reach the backend, calls=%d", gen.calls)
	}

	// Another client is unaffected.
	if w := postChat(router, `{"message": "hi"}`, "198.51.100.5"); w.Code != http.StatusOK {
		t.Errorf("other client should be admitted, got %d", w.Code)
	}
}

func TestChat_GlobalLimit(t *testing.T) {
	gen := &fakeGenerator{}
	router := newTestRouter(ratelimit.New(ratelimit.Config{}), gen, "")

	for i := 0; i < ratelimit.DefaultGlobalLimit; i++ {
		ip := fmt.Sprintf("10.1.%d.%d", i/256, i%256)
		if w := postChat(router, `{"message": "こんにちは", "conversationHistory": ""}`, ip); w.Code != http.StatusOK {
			t.Fatalf("request %d from %s: expected 200, got %d", i+1, ip, w.Code)
		}
	}

	w := postChat(router, `{"message": "こんにちは", "conversationHistory": ""}`, "10.9.9.9")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("701st request: expected 429, got %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != ratelimit.GlobalLimitMessage {
		t.Errorf("expected global limit message, got %q", resp.Error)
	}
	if gen.calls != ratelimit.DefaultGlobalLimit {
		t.Errorf("backend should see exactly %d requests, got %d", ratelimit.DefaultGlobalLimit, gen.calls)
	}
}

func TestChat_FailureLogCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	limiter := ratelimit.New(ratelimit.Config{})
	dispatcher := services.NewDispatcher(services.DispatcherConfig{
		Limiter:      limiter,
		Conversation: &fakeGenerator{err: errors.New("upstream unavailable")},
	})
	router := gin.New()
	router.Use(middleware.RequestID())
	RegisterRoutes(router, NewChatHandler(dispatcher, 0), NewAdminHandler(limiter, nil), "")

	w := postChat(router, `{"message": "こんにちは"}`, "203.0.113.50")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	id := w.Header().Get(middleware.RequestIDHeader)
	if id == "" {
		t.Fatal("expected a request id header")
	}
	if !strings.Contains(buf.String(), "request_id="+id) {
		t.Errorf("server log should carry request id %s, got %q", id, buf.String())
	}
}

func TestChat_BackendFailure(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"upstream error", &fakeGenerator{err: errors.New("503 from upstream")}},
		{"unstructured output", &fakeGenerator{reply: "I am not JSON"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(nil, tt.gen, "")
			w := postChat(router, `{"message": "hi"}`, "203.0.113.1")

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", w.Code)
			}
			var resp models.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp.Error != services.BackendFailureMessage {
				t.Errorf("unexpected error %q", resp.Error)
			}
		})
	}
}

func TestChat_BadRequests(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{})
	gen := &fakeGenerator{}
	router := newTestRouter(limiter, gen, "")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"not json", `hello`, http.StatusBadRequest},
		{"wrong types", `{"message": 5}`, http.StatusBadRequest},
		{"empty message", `{"message": "  ", "conversationHistory": ""}`, http.StatusBadRequest},
		{"too large", `{"message": "` + strings.Repeat("あ", 1024) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postChat(router, tt.body, "203.0.113.1")
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	if limiter.TrackedClients() != 0 || gen.calls != 0 {
		t.Error("rejected bodies must not consume rate limit budget or reach the backend")
	}
}

func TestChat_IdentityFromPeerAddress(t *testing.T) {
	router := newTestRouter(ratelimit.New(ratelimit.Config{ClientLimit: 1}), &fakeGenerator{}, "")

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message": "hi"}`))
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("192.0.2.10:5000"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := send("192.0.2.10:6000"); code != http.StatusTooManyRequests {
		t.Errorf("same host on another port is the same client, got %d", code)
	}
	if code := send("192.0.2.11:5000"); code != http.StatusOK {
		t.Errorf("different host is a different client, got %d", code)
	}
}

func TestAdminLimits(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{})
	router := newTestRouter(limiter, &fakeGenerator{}, "secret")

	postChat(router, `{"message": "hi"}`, "203.0.113.1")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/limits", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/limits", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var snap ratelimit.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to parse snapshot: %v", err)
	}
	if snap.GlobalCount != 1 || snap.TrackedClients != 1 || snap.GlobalLimit != ratelimit.DefaultGlobalLimit {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestAdminCacheWithoutDatabase(t *testing.T) {
	router := newTestRouter(nil, &fakeGenerator{}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/cache", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"entries":0`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/cache/prune", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"removed":0`) {
		t.Errorf("unexpected prune response %d %s", w.Code, w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(nil, &fakeGenerator{}, "")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("unexpected health response %d %q", w.Code, w.Body.String())
	}
}
