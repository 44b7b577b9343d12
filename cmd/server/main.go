package main

import (
	"log"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"whatsapp-hub/internal/api"
	"whatsapp-hub/internal/broadcast"
	"whatsapp-hub/internal/config"
	"whatsapp-hub/internal/database"
	"whatsapp-hub/internal/gateway"
	"whatsapp-hub/internal/observability"
	"whatsapp-hub/internal/quota"
	"whatsapp-hub/internal/template"
	"whatsapp-hub/internal/tenant"
	"whatsapp-hub/internal/upstream"
	"whatsapp-hub/internal/webhook"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.IsEnabled() {
		// The hub stays up for status queries and drafting; sends and
		// submissions fail fast until the operator supplies credentials.
		logger.Warn("provider credentials missing, gateway is disabled")
	}

	db, err := database.InitGorm(cfg)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}

	hub := broadcast.NewHub(logger)
	go hub.Run()
	broadcaster := broadcast.NewBroadcaster(hub, logger)

	registry := tenant.NewRegistry(db, logger)

	var guard quota.SecondGuard
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		guard, err = quota.NewRedisGuard(client)
		if err != nil {
			logger.Fatal("redis guard init failed", zap.Error(err))
		}
	}

	ledgerOpts := []quota.Option{
		quota.WithPublisher(broadcaster),
		quota.WithWarnPercent(cfg.QuotaWarnPercent),
		quota.WithLogger(logger),
	}
	if guard != nil {
		ledgerOpts = append(ledgerOpts, quota.WithSecondGuard(guard))
	}
	ledger := quota.NewLedger(quota.NewGormStore(db), registry, ledgerOpts...)

	upstreamClient := upstream.NewClient(cfg)
	lifecycle := template.NewLifecycle(
		template.NewGormStore(db), cfg, upstreamClient, broadcaster,
		template.WithLogger(logger),
	)

	messageLog := gateway.NewMessageLog(db, logger)
	gw := gateway.NewGateway(cfg, registry, lifecycle, ledger, upstreamClient, messageLog, logger)

	router := webhook.NewRouter(registry, lifecycle, messageLog, logger)
	webhookHandler := webhook.NewHandler(cfg, router, logger)

	messagingHandler := api.NewMessagingHandler(gw, messageLog)
	templateHandler := api.NewTemplateHandler(lifecycle, broadcaster)
	statusHandler := api.NewStatusHandler(ledger, broadcaster, hub)
	adminHandler := api.NewAdminHandler(registry, ledger)

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Webhook Routes
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleEvent)

	apiGroup := r.Group("/api")
	{
		tenants := apiGroup.Group("/tenants/:tenantId")
		{
			tenants.POST("/messages", messagingHandler.SendMessage)
			tenants.GET("/messages", messagingHandler.ListMessages)

			tenants.POST("/templates", templateHandler.CreateTemplate)
			tenants.GET("/templates", templateHandler.ListTemplates)
			tenants.POST("/templates/:templateId/submit", templateHandler.SubmitTemplate)
			tenants.POST("/templates/:templateId/pause", templateHandler.PauseTemplate)
			tenants.POST("/templates/:templateId/resume", templateHandler.ResumeTemplate)
			tenants.POST("/templates/:templateId/disable", templateHandler.DisableTemplate)
			tenants.GET("/templates/:templateId/status", templateHandler.GetTemplateStatus)

			tenants.GET("/quota", statusHandler.GetQuota)
			tenants.GET("/ws", statusHandler.Subscribe)
		}

		admin := apiGroup.Group("/admin")
		{
			admin.POST("/tenants", adminHandler.CreateTenant)
			admin.GET("/tenants/:tenantId", adminHandler.GetTenant)
			admin.POST("/tenants/:tenantId/phone", adminHandler.AssignPhoneNumber)
			admin.PUT("/tenants/:tenantId/plan", adminHandler.SetPlan)
			admin.POST("/tenants/:tenantId/quota/reset", adminHandler.ForceQuotaReset)
		}
	}

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
