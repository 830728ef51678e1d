package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gestia/mailroom/api/rest"
	"github.com/gestia/mailroom/api/sse"
	"github.com/gestia/mailroom/api/ws"
	"github.com/gestia/mailroom/audit"
	"github.com/gestia/mailroom/cache"
	"github.com/gestia/mailroom/config"
	"github.com/gestia/mailroom/db"
	mw "github.com/gestia/mailroom/middleware"
	"github.com/gestia/mailroom/model"
	"github.com/gestia/mailroom/push"
	"github.com/gestia/mailroom/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "./config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.Server.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	if err := model.AutoMigrate(gdb); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	auditSvc := audit.New(gdb, logger)
	defer auditSvc.Stop(context.Background())

	kv, err := cache.NewCache(cfg.Cache)
	if err != nil {
		logger.Fatal("init cache", zap.Error(err))
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		logger.Fatal("init pubsub", zap.Error(err))
	}

	hub := push.NewHub(pubsub, logger)

	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("draft_purge", time.Hour, func() {
		cutoff := time.Now().Add(-cfg.Mailbox.DraftRetention)
		res := gdb.Where("updated_at < ?", cutoff).Delete(&model.Draft{})
		if res.Error != nil {
			logger.Warn("draft purge failed", zap.Error(res.Error))
			return
		}
		if res.RowsAffected > 0 {
			logger.Info("purged stale drafts", zap.Int64("count", res.RowsAffected))
		}
	})
	sched.AddTicker("push_stats", 5*time.Minute, func() {
		logger.Debug("push stats", zap.Int("connected_accounts", hub.ConnectedAccounts()))
	})

	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID())
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authHandler := rest.NewAuthHandler(gdb, kv, cfg.Security)
	mailboxHandler := rest.NewMailboxHandler(gdb, cfg.Mailbox, hub, auditSvc, logger)
	wsHandler := ws.NewHandler(cfg.Security, kv, hub, logger)
	sseHandler := sse.NewHandler(pubsub, logger)

	api := r.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/logout", authHandler.Logout)

		authed := api.Group("")
		authed.Use(mw.Auth(cfg.Security, kv))
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
			authed.GET("/sse", sseHandler.Serve)
		}
	}
	r.GET("/ws", wsHandler.Serve)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("mailroom listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
