package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/kaiwa/internal/middleware"
	"github.com/codyseavey/kaiwa/internal/models"
	"github.com/codyseavey/kaiwa/internal/ratelimit"
	"github.com/codyseavey/kaiwa/internal/services"
)

const defaultMaxBodyBytes = 64 * 1024

type ChatHandler struct {
	dispatcher   *services.Dispatcher
	maxBodyBytes int64
}

func NewChatHandler(dispatcher *services.Dispatcher, maxBodyBytes int64) *ChatHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &ChatHandler{
		dispatcher:   dispatcher,
		maxBodyBytes: maxBodyBytes,
	}
}

// Chat serves every method on /api/chat. Only POST reaches the limiter; a
// malformed POST body is rejected with 400 before admission.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest

	if c.Request.Method == http.MethodPost {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
		if err := c.ShouldBindJSON(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "Request body too large"})
				return
			}
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "message is required"})
			return
		}
	}

	ctx := services.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
	out := h.dispatcher.Handle(ctx, c.Request.Method, req, ratelimit.ClientIdentity(c.Request))

	if out.Status == http.StatusMethodNotAllowed {
		c.Header("Allow", http.MethodPost)
	}
	if out.RetryAfter > 0 {
		c.Header("Retry-After", retryAfterSeconds(out))
	}
	c.JSON(out.Status, out.Body)
}

// retryAfterSeconds rounds up so clients never retry before the window resets.
func retryAfterSeconds(out services.Outcome) string {
	secs := int(math.Ceil(out.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
