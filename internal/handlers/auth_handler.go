package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/kartikrastogi18/FitConnect/pkg/utils"
	"github.com/sirupsen/logrus"
)

type authApplicationService interface {
	Register(ctx context.Context, email, password, role string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	Me(ctx context.Context, actor services.Actor) (*models.User, error)
}

type AuthHandler struct {
	service   authApplicationService
	jwtSecret string
	log       logrus.FieldLogger
}

func NewAuthHandler(service authApplicationService, jwtSecret string, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		service:   service,
		jwtSecret: jwtSecret,
		log:       log,
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=trainee trainer"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if msg := parseBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	user, err := h.service.Register(c.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return h.respondWithToken(c, fiber.StatusCreated, user)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if msg := parseBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	user, err := h.service.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return h.respondWithToken(c, fiber.StatusOK, user)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}

	user, err := h.service.Me(c.Context(), actor)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *AuthHandler) respondWithToken(c *fiber.Ctx, status int, user *models.User) error {
	token, err := utils.GenerateToken(strconv.FormatInt(user.ID, 10), string(user.Role), h.jwtSecret)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}

	return c.Status(status).JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}
