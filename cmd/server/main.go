package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kartikrastogi18/FitConnect/internal/ai"
	"github.com/kartikrastogi18/FitConnect/internal/config"
	"github.com/kartikrastogi18/FitConnect/internal/database"
	"github.com/kartikrastogi18/FitConnect/internal/gateway"
	"github.com/kartikrastogi18/FitConnect/internal/handlers"
	"github.com/kartikrastogi18/FitConnect/internal/jobs"
	"github.com/kartikrastogi18/FitConnect/internal/logging"
	"github.com/kartikrastogi18/FitConnect/internal/metrics"
	"github.com/kartikrastogi18/FitConnect/internal/repository"
	"github.com/kartikrastogi18/FitConnect/internal/routes"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	chatws "github.com/kartikrastogi18/FitConnect/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	readiness := map[string]handlers.ReadinessCheck{}
	var store repository.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		pool, err := database.ConnectDB(ctx, cfg.DBUrl, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer pool.Close()
		go metrics.StartPoolStatsCollector(ctx, pool, 15*time.Second)
		readiness["database"] = pool.Ping
		store = repository.NewPostgresStore(pool)
	}

	// 3. Collaborators
	stripeGateway := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey:         cfg.StripeSecretKey,
		WebhookSecret:     cfg.StripeWebhookSecret,
		BaseURL:           cfg.StripeBaseURL,
		IdempotencyPrefix: cfg.StripeKeyPrefix,
	}, log)
	var paymentGateway services.PaymentGateway
	if cfg.StripeSecretKey != "" {
		paymentGateway = stripeGateway
	} else {
		log.Warn("STRIPE_SECRET_KEY is not set; payments are disabled")
	}

	bridge, err := ai.NewBridge(ai.Config{
		Provider: cfg.AIProvider,
		BaseURL:  cfg.AIBaseURL,
		Model:    cfg.AIModel,
		APIKey:   cfg.AIAPIKey,
		Timeout:  cfg.AITimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to configure AI provider")
	}
	if bridge == nil {
		log.Warn("AI_PROVIDER is not set; AI chats will receive the fallback reply")
	}

	hub := chatws.NewHub(log)
	var relay *chatws.RedisRelay
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		readiness["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		relay = chatws.NewRedisRelay(rdb, chatws.DefaultRelayChannel, log)
		hub.UseRelay(relay)
	}
	go hub.Run(ctx)
	if relay != nil {
		go func() {
			if err := relay.Run(ctx, hub); err != nil {
				log.WithError(err).Error("redis relay stopped")
			}
		}()
	}

	// 4. Services
	escrowService := services.NewEscrowService(store, paymentGateway, services.EscrowConfig{
		Currency:         cfg.PaymentCurrency,
		DefaultRateMinor: cfg.DefaultRateMinor,
	}, log)
	messageService := services.NewMessageService(store, bridge, hub, services.MessageConfig{
		ContextWindow: cfg.AIContextWindow,
		SystemPrompt:  cfg.AISystemPrompt,
		AITimeout:     cfg.AITimeout,
	}, log)

	if cfg.AutoReleaseEnabled() {
		releaser := jobs.NewAutoReleaser(escrowService, cfg.AutoReleaseSchedule, cfg.AutoReleaseAfter, log)
		if err := releaser.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start escrow auto-release")
		}
		defer releaser.Stop()
	}

	// 5. Setup Fiber
	app := fiber.New(fiber.Config{DisableStartupMessage: !cfg.IsDevelopment()})

	// Middleware
	app.Use(requestid.New())
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())
	if cfg.MetricsEnabled {
		app.Use(metrics.Middleware())
	}

	// Routes
	if err := routes.RegisterRoutes(app, routes.Dependencies{
		Config:    cfg,
		Log:       log,
		Auth:      services.NewAuthService(store),
		Chats:     services.NewChatService(store, paymentGateway, log),
		Messages:  messageService,
		Escrow:    escrowService,
		Gateway:   stripeGateway,
		Hub:       hub,
		Readiness: readiness,
	}); err != nil {
		log.WithError(err).Fatal("Failed to register routes")
	}

	// 6. Start Server
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Error("Server shutdown failed")
		}
	}()

	log.WithFields(logrus.Fields{"port": cfg.Port, "store": cfg.StoreDriver}).Info("Server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("Server failed to start")
	}
	log.Info("Server stopped")
}
