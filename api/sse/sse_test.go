package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gestia/mailroom/cache"
	"github.com/gestia/mailroom/config"
	"github.com/gestia/mailroom/mailbox"
	mw "github.com/gestia/mailroom/middleware"
	"github.com/gestia/mailroom/push"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServeStreamsEnvelopes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ps, err := cache.NewPubSub(config.CacheConfig{LocalPubSubBuf: 64})
	require.NoError(t, err)
	hub := push.NewHub(ps, zap.NewNop())
	handler := NewHandler(ps, zap.NewNop())

	r := gin.New()
	r.GET("/sse", func(c *gin.Context) {
		c.Set(mw.AccountIDKey, int64(7))
		handler.Serve(c)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The subscription opens before the handler writes headers, so a
	// short settle is enough for the publish to be seen.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), 7,
		mailbox.EventMailboxUpdated, mailbox.MailboxUpdatedEvent{WorkorderID: 9}))

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var env mailbox.Envelope
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env))
		assert.Equal(t, mailbox.EventMailboxUpdated, env.Type)
		return
	}
	t.Fatal("no data line received before the stream ended")
}
