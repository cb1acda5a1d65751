package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"shelter_app_echo/internal/config"
	"shelter_app_echo/internal/handlers"
	authMiddleware "shelter_app_echo/internal/middleware"
	"shelter_app_echo/internal/services"
	"shelter_app_echo/web"
)

func main() {
	cfg := config.Load()

	logger, err := services.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Firebase
	var authClient *auth.Client
	authClient, err = services.InitFirebase(context.Background(), cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed: %v", err)
		log.Println("Shelter settings routes will redirect to login until valid credentials are provided")
		authClient = nil
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis is optional: without it there is no cross-instance refresh lock
	// and OAuth state nonces are not checked
	var locker services.Locker
	var states services.StateStore
	if cfg.RedisURL != "" {
		cache, err := services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: Redis unavailable: %v", err)
		} else {
			defer cache.Close()
			locker = cache
			states = cache
		}
	} else {
		log.Println("Warning: REDIS_URL not set, running without refresh lock and OAuth state store")
	}

	platform := services.NewPlatformCredential(cfg.MercadoPago)
	if platform == nil {
		log.Println("MERCADOPAGO_ACCESS_TOKEN not set, no platform fallback credential")
	}

	mp := services.NewMercadoPagoClient(cfg.MercadoPago, cfg.ProviderTimeout)
	pagopar := services.NewPagoparClient(cfg.Pagopar, cfg.ProviderTimeout)

	store := services.NewCredentialStore(db)
	ledger := services.NewLedger(db, time.Now)
	tokens := services.NewTokenManager(store, mp, locker, logger, time.Now)
	cascade := services.NewCredentialCascade(store, tokens, platform, mp, logger)
	initiator := services.NewDonationInitiator(cfg.AppURL, tokens, platform, mp, store, pagopar, ledger, logger, time.Now)
	sync := services.NewPagoparSync(store, ledger, pagopar, logger, time.Now)
	connections := services.NewConnections(cfg.AppURL, cfg.MercadoPago, store, mp, states, platform, logger)
	authz := services.NewMembershipAuthorizer(db)

	renderer, err := web.NewTemplateRenderer()
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = authMiddleware.CustomErrorHandler
	e.Renderer = renderer

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	authHandler := handlers.NewAuthHandler(authClient, cfg.Firebase, cfg.SecureCookies)
	webhookHandler := handlers.NewWebhookHandler(
		services.NewMercadoPagoWebhooks(cascade, ledger, logger),
		services.NewPagoparWebhooks(store, ledger, logger),
		services.NewCallbackRecorder(db, logger),
		logger,
	)
	donationHandler := handlers.NewDonationHandler(initiator, sync, ledger, logger)
	connectHandler := handlers.NewConnectHandler(connections, authz, logger)
	settingsHandler := handlers.NewSettingsHandler(connections)

	// Public routes
	e.GET("/login", authHandler.LoginPage)
	e.POST("/auth/login", authHandler.HandleLogin)
	e.POST("/auth/logout", authHandler.HandleLogout)

	e.GET("/webhooks/mercadopago", webhookHandler.Ping)
	e.POST("/webhooks/mercadopago", webhookHandler.MercadoPagoWebhook)
	e.GET("/webhooks/pagopar", webhookHandler.Ping)
	e.POST("/webhooks/pagopar", webhookHandler.PagoparWebhook)

	e.POST("/donations/mercadopago", donationHandler.CreateMercadoPagoDonation)
	e.POST("/donations/pagopar", donationHandler.CreatePagoparDonation)
	e.GET("/donations/pagopar/:hash/status", donationHandler.PagoparStatus)
	e.GET("/donations/result/:outcome", donationHandler.DonationResult)

	// Protected routes
	protected := e.Group("")
	protected.Use(authMiddleware.RequireAuth(authClient))
	protected.GET("/oauth/mercadopago/callback", connectHandler.MercadoPagoCallback)

	shelter := protected.Group("/shelters/:shelterID")
	shelter.Use(authMiddleware.RequireShelterAccess(authz, logger))
	shelter.GET("/mercadopago/connect", connectHandler.MercadoPagoConnect)
	shelter.POST("/mercadopago/disconnect", connectHandler.MercadoPagoDisconnect)
	shelter.POST("/pagopar/connect", connectHandler.PagoparConnect)
	shelter.POST("/pagopar/disconnect", connectHandler.PagoparDisconnect)
	shelter.GET("/payments/status", settingsHandler.PaymentStatus)
	shelter.GET("/settings/payments", settingsHandler.PaymentSettingsPage)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
