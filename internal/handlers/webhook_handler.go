package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kartikrastogi18/FitConnect/internal/gateway"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/sirupsen/logrus"
)

type webhookParser interface {
	ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error)
}

type webhookEscrowService interface {
	ConfirmHeldByGatewayRef(ctx context.Context, gatewayRef string) (*services.EscrowState, error)
	FailByGatewayRef(ctx context.Context, gatewayRef string) (*services.EscrowState, error)
}

// StripeWebhookHandler turns signed payment events into escrow transitions.
type StripeWebhookHandler struct {
	parser  webhookParser
	service webhookEscrowService
	log     logrus.FieldLogger
}

func NewStripeWebhookHandler(parser webhookParser, service webhookEscrowService, log logrus.FieldLogger) *StripeWebhookHandler {
	return &StripeWebhookHandler{parser: parser, service: service, log: log}
}

func (h *StripeWebhookHandler) Handle(c *fiber.Ctx) error {
	event, err := h.parser.ParseWebhook(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, gateway.ErrWebhookNotConfigured) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Webhooks are not configured"})
		}
		h.log.WithError(err).Warn("rejected stripe webhook")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid webhook signature"})
	}

	entry := h.log.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"intent_id":  event.IntentID,
	})

	var state *services.EscrowState
	switch event.Kind {
	case gateway.WebhookPaymentSucceeded:
		state, err = h.service.ConfirmHeldByGatewayRef(c.Context(), event.IntentID)
	case gateway.WebhookPaymentFailed:
		state, err = h.service.FailByGatewayRef(c.Context(), event.IntentID)
	default:
		return c.JSON(fiber.Map{"received": true})
	}

	if err != nil {
		switch services.KindOf(err) {
		case services.KindNotFound, services.KindInvalidState, services.KindValidation:
			// Redelivery cannot fix these; acknowledge so Stripe stops retrying.
			entry.WithError(err).Warn("stripe webhook not applied")
			return c.JSON(fiber.Map{"received": true, "applied": false})
		default:
			entry.WithError(err).Error("stripe webhook failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process webhook"})
		}
	}

	entry.WithFields(logrus.Fields{
		"payment_id":     state.Payment.ID,
		"payment_status": state.Payment.Status,
	}).Info("stripe webhook applied")
	return c.JSON(fiber.Map{"received": true, "applied": true})
}
