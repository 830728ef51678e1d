package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gestia/mailroom/audit"
	"github.com/gestia/mailroom/cache"
	"github.com/gestia/mailroom/config"
	mw "github.com/gestia/mailroom/middleware"
	"github.com/gestia/mailroom/push"
	"github.com/gestia/mailroom/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	router *gin.Engine
	db     *gorm.DB
	cache  cache.Cache
	pubsub cache.PubSub
	hub    *push.Hub
	sec    config.SecurityConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb := testutil.SetupTestDB(t)
	kv, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret: "test-secret",
		JWTTTLH:   72 * time.Hour,
	}
	mcfg := config.MailboxConfig{PageSize: 5, AttachmentDir: t.TempDir()}

	hub := push.NewHub(pubsub, logger)
	auditSvc := audit.New(gdb, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	authHandler := NewAuthHandler(gdb, kv, sec)
	mailboxHandler := NewMailboxHandler(gdb, mcfg, hub, auditSvc, logger)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout)
	authed := api.Group("")
	authed.Use(mw.Auth(sec, kv))
	{
		authed.GET("/mailbox/counts", mailboxHandler.Counts)
		authed.GET("/mailbox/:folder", mailboxHandler.List)
		authed.PATCH("/mailbox/:id/read", mailboxHandler.PatchItem("read"))
		authed.PATCH("/mailbox/:id/star", mailboxHandler.PatchItem("star"))
		authed.PATCH("/mailbox/:id/important", mailboxHandler.PatchItem("important"))
		authed.PATCH("/mailbox/workorder/:id/read", mailboxHandler.PatchWorkorder("read"))
		authed.PATCH("/mailbox/workorder/:id/star", mailboxHandler.PatchWorkorder("star"))
		authed.PATCH("/mailbox/workorder/:id/important", mailboxHandler.PatchWorkorder("important"))
		authed.PATCH("/mailbox/:id/move", mailboxHandler.Move)
		authed.POST("/mailbox/drafts/store", mailboxHandler.StoreDraft)
		authed.DELETE("/mailbox/drafts/:id", mailboxHandler.DeleteDraft)
		authed.POST("/mailbox/reply", mailboxHandler.Reply)
		authed.POST("/tasks/store", mailboxHandler.Compose)
	}

	return &fixture{router: r, db: gdb, cache: kv, pubsub: pubsub, hub: hub, sec: sec}
}

func (f *fixture) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// login registers (or authenticates) a user and returns the token and id.
func (f *fixture) login(t *testing.T, username, email string) (string, int64) {
	t.Helper()
	w := f.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": username,
		"password": "secret123",
		"email":    email,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token     string `json:"token"`
		AccountID int64  `json:"account_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.AccountID
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out),
		fmt.Sprintf("body: %s", w.Body.String()))
}
