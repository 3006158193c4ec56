package routes

import (
	"errors"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/kartikrastogi18/FitConnect/internal/config"
	"github.com/kartikrastogi18/FitConnect/internal/gateway"
	"github.com/kartikrastogi18/FitConnect/internal/handlers"
	"github.com/kartikrastogi18/FitConnect/internal/metrics"
	"github.com/kartikrastogi18/FitConnect/internal/middleware"
	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	chatws "github.com/kartikrastogi18/FitConnect/internal/websocket"
	"github.com/sirupsen/logrus"
)

// Dependencies are the long-lived components the HTTP surface is built from.
type Dependencies struct {
	Config   *config.Config
	Log      logrus.FieldLogger
	Auth     *services.AuthService
	Chats    *services.ChatService
	Messages *services.MessageService
	Escrow   *services.EscrowService
	Gateway  *gateway.StripeGateway
	Hub      *chatws.Hub
	// Readiness checks are reported by GET /health/ready.
	Readiness map[string]handlers.ReadinessCheck
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("routes: config is required")
	case d.Log == nil:
		return errors.New("routes: logger is required")
	case d.Auth == nil, d.Chats == nil, d.Messages == nil, d.Escrow == nil:
		return errors.New("routes: services are required")
	case d.Gateway == nil:
		return errors.New("routes: payment gateway is required")
	case d.Hub == nil:
		return errors.New("routes: realtime hub is required")
	}
	return nil
}

func RegisterRoutes(app *fiber.App, deps Dependencies) error {
	if err := deps.validate(); err != nil {
		return err
	}
	cfg := deps.Config

	healthHandler := handlers.NewHealthHandler(deps.Readiness, deps.Log)
	authHandler := handlers.NewAuthHandler(deps.Auth, cfg.JWTSecret, deps.Log)
	chatHandler := handlers.NewChatHandler(deps.Chats, deps.Messages, deps.Log)
	paymentHandler := handlers.NewPaymentHandler(deps.Escrow, deps.Log)
	adminHandler := handlers.NewAdminHandler(deps.Escrow, deps.Log)
	webhookHandler := handlers.NewStripeWebhookHandler(deps.Gateway, deps.Escrow, deps.Log)
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.Messages, cfg.JWTSecret, deps.Log)

	app.Get("/health", healthHandler.Health)
	app.Get("/health/ready", healthHandler.Ready)
	if cfg.MetricsEnabled {
		app.Get("/metrics", metrics.Handler())
	}

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	api.Post("/webhooks/stripe", webhookHandler.Handle)

	// The socket authenticates from the query string, so it is registered
	// before the bearer-protected group.
	api.Use("/v1/ws", realtimeHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(realtimeHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	chats := authProtected.Group("/chats")
	chats.Get("", chatHandler.ListChats)
	chats.Post("/ai", chatHandler.CreateAIChat)
	chats.Post("/trainer", chatHandler.CreateTrainerChat)
	chats.Get("/:id", chatHandler.GetChat)
	chats.Post("/:id/complete", chatHandler.CompleteChat)
	chats.Post("/:id/cancel", chatHandler.CancelChat)
	chats.Get("/:id/messages", chatHandler.GetMessages)
	chats.Post("/:id/messages", chatHandler.SendMessage)

	payments := authProtected.Group("/payments")
	payments.Post("", paymentHandler.CreatePayment)
	payments.Post("/confirm", paymentHandler.ConfirmPayment)
	payments.Get("/my", paymentHandler.ListMyPayments)
	payments.Get("/:id", paymentHandler.GetPayment)

	admin := authProtected.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	admin.Get("/payments", adminHandler.ListPayments)
	admin.Post("/payments/:id/release", adminHandler.ReleasePayment)
	admin.Post("/payments/:id/refund", adminHandler.RefundPayment)
	admin.Put("/trainers/:id/rate", adminHandler.SetTrainerRate)

	return nil
}
