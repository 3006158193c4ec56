package handlers

import (
	"context"
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/kartikrastogi18/FitConnect/internal/middleware"
	chatws "github.com/kartikrastogi18/FitConnect/internal/websocket"
	"github.com/kartikrastogi18/FitConnect/pkg/utils"
	"github.com/sirupsen/logrus"
)

type RealtimeHandler struct {
	hub       *chatws.Hub
	backend   chatws.ChatBackend
	jwtSecret string
	log       logrus.FieldLogger
}

func NewRealtimeHandler(hub *chatws.Hub, backend chatws.ChatBackend, jwtSecret string, log logrus.FieldLogger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:       hub,
		backend:   backend,
		jwtSecret: jwtSecret,
		log:       log,
	}
}

func (h *RealtimeHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}
	if _, err := middleware.ParseActor(claims.UserID, claims.Role); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *RealtimeHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	role, _ := conn.Locals("role").(string)
	actor, err := middleware.ParseActor(userID, role)
	if err != nil {
		_ = conn.Close()
		return
	}

	client := chatws.NewClient(h.hub, conn, actor)
	h.hub.Register(client)
	h.log.WithField("user_id", actor.ID).Debug("websocket connected")

	go client.WritePump()
	client.ReadPump(context.Background(), h.backend)
	h.log.WithField("user_id", actor.ID).Debug("websocket disconnected")
}

func (h *RealtimeHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}
