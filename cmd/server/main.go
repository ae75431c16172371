package main

import (
	"log"
	"time"

	"whatsapp-commerce/internal/api"
	"whatsapp-commerce/internal/campaign"
	"whatsapp-commerce/internal/catalog"
	"whatsapp-commerce/internal/config"
	"whatsapp-commerce/internal/conversation"
	"whatsapp-commerce/internal/database"
	"whatsapp-commerce/internal/payments"
	"whatsapp-commerce/internal/session"
	"whatsapp-commerce/internal/store"
	"whatsapp-commerce/internal/webhook"
	"whatsapp-commerce/internal/whatsapp"
	"whatsapp-commerce/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Init(cfg)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}

	contacts := store.NewContactStore(db)
	leads := store.NewLeadStore(db)
	orders := store.NewOrderRegistry(db)
	paymentLog := store.NewPaymentLog(db)
	campaigns := store.NewCampaignStore(db)

	cat, err := catalog.NewStore(db)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	client := whatsapp.NewClient(cfg)
	sessions := session.NewManager(time.Duration(cfg.SessionTTLMinutes) * time.Minute)

	gateway, err := payments.NewGateway(cfg.MPAccessToken)
	if err != nil {
		log.Printf("Warning: payment gateway disabled: %v", err)
		gateway = nil
	}

	orchestrator := &payments.Orchestrator{
		Config:   cfg,
		Catalog:  cat,
		Orders:   orders,
		Contacts: contacts,
		Leads:    leads,
		Log:      paymentLog,
		Sender:   client,
		Notify:   hub.BroadcastEvent,
	}
	if gateway != nil {
		orchestrator.Gateway = gateway
	}

	engine := conversation.NewEngine(client, sessions, cat, contacts, leads, orders, orchestrator)

	scheduler := campaign.NewScheduler(campaigns, contacts, leads, cat, client)
	scheduler.Notify = hub.BroadcastEvent
	scheduler.Run()
	defer scheduler.Shutdown()

	webhookHandler := webhook.NewHandler(cfg, engine, contacts, leads, paymentLog, orchestrator)
	webhookHandler.Notify = hub.BroadcastEvent

	campaignHandler := api.NewCampaignHandler(campaigns, scheduler)
	catalogHandler := api.NewCatalogHandler(cat)
	analyticsHandler := api.NewAnalyticsHandler(paymentLog)
	paymentHandler := api.NewPaymentHandler(orchestrator, orders)

	// Abandoned orders pile up when buyers never pay; sweep them daily.
	go func() {
		ttl := time.Duration(cfg.OrderTTLDays) * 24 * time.Hour
		for {
			if n, err := orders.SweepOlderThan(ttl); err != nil {
				log.Printf("[orders] sweep: %v", err)
			} else if n > 0 {
				log.Printf("[orders] swept %d stale orders", n)
			}
			time.Sleep(24 * time.Hour)
		}
	}()

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

	// WhatsApp webhook
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleMessage)

	// Payment gateway webhook (the gateway probes with GET)
	r.GET("/mp/webhook", webhookHandler.HandlePaymentNotification)
	r.POST("/mp/webhook", webhookHandler.HandlePaymentNotification)

	// Checkout
	r.POST("/mp/process-payment", paymentHandler.ProcessPayment)
	r.POST("/mp/create-preference", paymentHandler.CreatePreference)
	r.GET("/mp/checkout", paymentHandler.Checkout)

	// Operator configuration
	r.GET("/config", catalogHandler.Get)
	r.POST("/config", catalogHandler.Save)

	// Campaigns
	r.POST("/campaigns", campaignHandler.Create)
	r.GET("/campaigns", campaignHandler.List)
	r.GET("/campaigns/:id", campaignHandler.Get)
	r.PUT("/campaigns/:id", campaignHandler.Update)
	r.POST("/campaigns/:id/start", campaignHandler.Start)
	r.POST("/campaigns/:id/pause", campaignHandler.Pause)
	r.POST("/campaigns/:id/resume", campaignHandler.Resume)

	// Analytics
	r.POST("/analytics/checkout-click", analyticsHandler.CheckoutClick)
	r.GET("/analytics/stats", analyticsHandler.Stats)
	r.GET("/analytics/pay-status", analyticsHandler.PayStatus)

	// Dashboard live events
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
