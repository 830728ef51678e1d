package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gestia/mailroom/cache"
	"github.com/gestia/mailroom/config"
	mw "github.com/gestia/mailroom/middleware"
	"github.com/gestia/mailroom/push"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades authenticated clients to WebSocket push sessions.
type Handler struct {
	sec      config.SecurityConfig
	cache    cache.Cache
	hub      *push.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a WebSocket handler bound to the push hub.
func NewHandler(sec config.SecurityConfig, c cache.Cache, hub *push.Hub, logger *zap.Logger) *Handler {
	h := &Handler{sec: sec, cache: c, hub: hub, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.sec.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.sec.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Serve handles GET /ws?token=<jwt>. The token travels as a query param
// because browser WebSocket clients cannot set headers.
func (h *Handler) Serve(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	ok, err := h.cache.Exists(ctx, "session:"+tokenStr)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := push.NewSession(claims.AccountID, conn, h.logger)
	h.hub.Register(session)
	defer func() {
		h.hub.Unregister(session)
		session.Close()
	}()

	h.readPump(session, conn)
}

// readPump consumes inbound frames until the peer disconnects. Clients
// do not send application data; reads exist to drive pong handling.
func (h *Handler) readPump(session *push.Session, conn *websocket.Conn) {
	session.SetReadDeadline()
	conn.SetPongHandler(func(string) error {
		session.SetReadDeadline()
		return nil
	})
	conn.SetReadLimit(4096)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read ended",
					zap.Int64("account_id", session.AccountID), zap.Error(err))
			}
			return
		}
	}
}
