package sse

import (
	"net/http"
	"time"

	"github.com/gestia/mailroom/cache"
	mw "github.com/gestia/mailroom/middleware"
	"github.com/gestia/mailroom/push"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const keepaliveInterval = 25 * time.Second

// Handler streams mailbox envelopes over Server-Sent Events for clients
// that cannot hold a WebSocket. It runs behind the normal auth middleware,
// so the account comes from the request context.
type Handler struct {
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewHandler creates an SSE handler over the given pub/sub.
func NewHandler(pubsub cache.PubSub, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, logger: logger}
}

// Serve handles GET /api/sse. Each envelope published on the account's
// channel becomes one SSE message; keepalive comments hold the connection
// open through idle proxies.
func (h *Handler) Serve(c *gin.Context) {
	accountID := mw.GetAccountID(c)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	msgCh, unsub, err := h.pubsub.Subscribe(c.Request.Context(), push.ChannelFor(accountID))
	if err != nil {
		h.logger.Error("sse subscribe failed",
			zap.Int64("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscription failed"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case msg, open := <-msgCh:
			if !open {
				return
			}
			c.Writer.WriteString("data: " + msg.Payload + "\n\n")
			flusher.Flush()
		case <-ticker.C:
			c.Writer.WriteString(": keepalive\n\n")
			flusher.Flush()
		}
	}
}
