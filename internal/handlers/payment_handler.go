package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/kartikrastogi18/FitConnect/pkg/utils"
	"github.com/sirupsen/logrus"
)

type paymentApplicationService interface {
	CreatePayment(ctx context.Context, actor services.Actor, chatID int64) (*services.PaymentCheckout, error)
	ConfirmHeld(ctx context.Context, actor services.Actor, chatID int64) (*services.EscrowState, error)
	GetPayment(ctx context.Context, actor services.Actor, paymentID int64) (*models.Payment, error)
	ListMyPayments(ctx context.Context, actor services.Actor, page int, limit int) ([]models.Payment, int, error)
}

type PaymentHandler struct {
	service paymentApplicationService
	log     logrus.FieldLogger
}

func NewPaymentHandler(service paymentApplicationService, log logrus.FieldLogger) *PaymentHandler {
	return &PaymentHandler{service: service, log: log}
}

type chatPaymentRequest struct {
	ChatID int64 `json:"chat_id" validate:"required,gt=0"`
}

// paymentView adds the presentation amount next to the integer minor units.
type paymentView struct {
	*models.Payment
	DisplayAmount string `json:"display_amount"`
}

func newPaymentView(payment *models.Payment) *paymentView {
	if payment == nil {
		return nil
	}
	return &paymentView{Payment: payment, DisplayAmount: utils.FormatMinor(payment.Amount)}
}

func newPaymentViews(payments []models.Payment) []paymentView {
	views := make([]paymentView, 0, len(payments))
	for i := range payments {
		views = append(views, *newPaymentView(&payments[i]))
	}
	return views
}

func escrowStateResponse(state *services.EscrowState) fiber.Map {
	return fiber.Map{
		"chat":    state.Chat,
		"payment": newPaymentView(state.Payment),
	}
}

func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}

	var req chatPaymentRequest
	if msg := parseBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	checkout, err := h.service.CreatePayment(c.Context(), actor, req.ChatID)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment":       newPaymentView(checkout.Payment),
		"client_secret": checkout.ClientSecret,
	})
}

func (h *PaymentHandler) ConfirmPayment(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}

	var req chatPaymentRequest
	if msg := parseBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	state, err := h.service.ConfirmHeld(c.Context(), actor, req.ChatID)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(escrowStateResponse(state))
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}
	paymentID, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid payment id")
	}

	payment, err := h.service.GetPayment(c.Context(), actor, paymentID)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"payment": newPaymentView(payment)})
}

func (h *PaymentHandler) ListMyPayments(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}

	page, limit := parsePageParams(c)
	payments, total, err := h.service.ListMyPayments(c.Context(), actor, page, limit)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"payments":   newPaymentViews(payments),
		"pagination": buildPaginationMeta(page, limit, total),
	})
}
