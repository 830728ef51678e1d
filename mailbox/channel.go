package mailbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// Channel is the realtime transport client: a WebSocket subscription to
// the viewer's identity-scoped event stream. A dropped connection triggers
// reconnect with capped exponential backoff; it never invalidates the
// cache. The channel is "wake up and reconcile", not a durable log.
type Channel struct {
	url     string
	handler func(Envelope)
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

// NewChannel creates a Channel for the given ws:// URL (token included)
// delivering decoded envelopes to handler.
func NewChannel(url string, handler func(Envelope), logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		url:     url,
		handler: handler,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
	}
}

// Run connects and consumes envelopes until ctx is cancelled.
func (ch *Channel) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		conn, _, err := ch.dialer.DialContext(ctx, ch.url, nil)
		if err != nil {
			ch.logger.Warn("channel dial failed", zap.Error(err))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = reconnectMin
		ch.logger.Info("channel connected")

		if err := ch.readLoop(ctx, conn); err != nil {
			ch.logger.Warn("channel disconnected", zap.Error(err))
		}
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

func (ch *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			ch.logger.Warn("malformed envelope", zap.Error(err))
			continue
		}
		ch.handler(env)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMax {
		return reconnectMax
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
