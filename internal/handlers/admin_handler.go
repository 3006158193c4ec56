package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/kartikrastogi18/FitConnect/pkg/utils"
	"github.com/sirupsen/logrus"
)

type adminApplicationService interface {
	ListPayments(ctx context.Context, actor services.Actor, status string, page int, limit int) ([]models.Payment, int, error)
	Release(ctx context.Context, actor services.Actor, paymentID int64) (*services.EscrowState, error)
	Refund(ctx context.Context, actor services.Actor, paymentID int64) (*services.EscrowState, error)
	SetTrainerRate(ctx context.Context, actor services.Actor, trainerID int64, rateMinor int64) (*models.TrainerProfile, error)
}

type AdminHandler struct {
	service adminApplicationService
	log     logrus.FieldLogger
}

func NewAdminHandler(service adminApplicationService, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{service: service, log: log}
}

// setRateRequest takes either integer minor units or a display amount such
// as "199.00".
type setRateRequest struct {
	RateMinor *int64 `json:"rate_minor"`
	Rate      string `json:"rate"`
}

func (h *AdminHandler) ListPayments(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}

	page, limit := parsePageParams(c)
	payments, total, err := h.service.ListPayments(c.Context(), actor, c.Query("status"), page, limit)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"payments":   newPaymentViews(payments),
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *AdminHandler) ReleasePayment(c *fiber.Ctx) error {
	return h.settle(c, h.service.Release)
}

func (h *AdminHandler) RefundPayment(c *fiber.Ctx) error {
	return h.settle(c, h.service.Refund)
}

func (h *AdminHandler) settle(
	c *fiber.Ctx,
	op func(ctx context.Context, actor services.Actor, paymentID int64) (*services.EscrowState, error),
) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}
	paymentID, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid payment id")
	}

	state, err := op(c.Context(), actor, paymentID)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(escrowStateResponse(state))
}

func (h *AdminHandler) SetTrainerRate(c *fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return invalidToken(c)
	}
	trainerID, err := parseIDParam(c, "id")
	if err != nil {
		return badRequest(c, "Invalid trainer id")
	}

	var req setRateRequest
	if msg := parseBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	var rateMinor int64
	switch {
	case req.RateMinor != nil:
		rateMinor = *req.RateMinor
	case strings.TrimSpace(req.Rate) == "":
		return badRequest(c, "rate_minor or rate is required")
	default:
		rateMinor, err = utils.ParseMinor(strings.TrimSpace(req.Rate))
		if err != nil {
			return badRequest(c, "rate must be an amount like 199.00")
		}
	}

	profile, err := h.service.SetTrainerRate(c.Context(), actor, trainerID, rateMinor)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}

	display := ""
	if profile.SessionRateMinor != nil {
		display = utils.FormatMinor(*profile.SessionRateMinor)
	}
	return c.JSON(fiber.Map{
		"trainer_profile": profile,
		"display_rate":    display,
	})
}
