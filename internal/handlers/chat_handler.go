package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/sirupsen/logrus"
)

type chatApplicationService interface {
	CreateAIChat(ctx context.Context, actor services.Actor) (*models.ChatSession, bool, error)
	CreateTrainerChat(ctx context.Context, actor services.Actor, trainerID int64) (*models.ChatSession, bool, error)
	ListChats(ctx context.Context, actor services.Actor) ([]models.ChatSession, error)
	GetChat(ctx context.Context, actor services.Actor, chatID int64) (*models.ChatDetail, error)
	Complete(ctx context.Context, actor services.Actor, chatID int64) (*models.ChatSession, error)
	Cancel(ctx context.Context, actor services.Actor, chatID int64) (*models.ChatDetail, error)
}

type messageApplicationService interface {
	Send(ctx context.Context, actor services.Actor, chatID int64, content string) (*services.SendResult, error)
	ListMessages(ctx context.Context, actor services.Actor, chatID int64, page int, limit int) ([]models.Message, int, error)
}

type ChatHandler struct {
	chats    chatApplicationService
	messages messageApplicationService
	log      logrus.FieldLogger
}

func NewChatHandler(chats chatApplicationService, messages messageApplicationService, log logrus.FieldLogger) *ChatHandler {
	return &ChatHandler{chats: chats, messages: messages, log: log}
}

type createTrainerChatRequest struct {
	TrainerID int64 `json:"trainer_id" validate:"required,gt=0"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

func (h *ChatHandler) ListChats(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}

	chats, err := h.chats.ListChats(c.Context(), actor)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"chats": chats})
}

func (h *ChatHandler) CreateAIChat(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}

	chat, created, err := h.chats.CreateAIChat(c.Context(), actor)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return respondChat(c, chat, created)
}

func (h *ChatHandler) CreateTrainerChat(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}

	var req createTrainerChatRequest
	if msg := parseBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	chat, created, err := h.chats.CreateTrainerChat(c.Context(), actor, req.TrainerID)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return respondChat(c, chat, created)
}

func respondChat(c *fiber.Ctx, chat *models.ChatSession, created bool) error {
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"chat": chat, "created": created})
}

func (h *ChatHandler) GetChat(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid chat id")
	}

	detail, err := h.chats.GetChat(c.Context(), actor, chatID)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"chat": detail})
}

func (h *ChatHandler) CompleteChat(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid chat id")
	}

	chat, err := h.chats.Complete(c.Context(), actor, chatID)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"chat": chat})
}

func (h *ChatHandler) CancelChat(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid chat id")
	}

	detail, err := h.chats.Cancel(c.Context(), actor, chatID)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"chat": detail})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid chat id")
	}

	page, limit := parsePageParams(c)
	messages, total, err := h.messages.ListMessages(c.Context(), actor, chatID, page, limit)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}
	chatID, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid chat id")
	}

	var req sendMessageRequest
	if msg := parseBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	result, err := h.messages.Send(c.Context(), actor, chatID, req.Content)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}
