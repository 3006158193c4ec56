// Package gateway adapts the Stripe API to the escrow engine's payment gateway contract.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

var ErrWebhookNotConfigured = errors.New("stripe webhook secret is not configured")

// ErrIntentSucceeded is returned when an intent can no longer be cancelled
// because the charge already went through.
var ErrIntentSucceeded = errors.New("payment intent already succeeded")

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string
	// IdempotencyPrefix separates deployments that share a Stripe account.
	IdempotencyPrefix string
}

type StripeGateway struct {
	api               *client.API
	webhookSecret     string
	idempotencyPrefix string
}

var _ services.PaymentGateway = (*StripeGateway)(nil)

func NewStripeGateway(cfg StripeConfig, log logrus.FieldLogger) *StripeGateway {
	backendConfig := &stripe.BackendConfig{
		// Calls are never retried implicitly; failures go back to the caller.
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     log,
	}
	if cfg.BaseURL != "" {
		backendConfig.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
	return &StripeGateway{
		api:               api,
		webhookSecret:     cfg.WebhookSecret,
		idempotencyPrefix: cfg.IdempotencyPrefix,
	}
}

func (g *StripeGateway) CreateIntent(
	ctx context.Context,
	amount int64,
	currency string,
	metadata map[string]string,
) (*services.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}
	// One intent per chat and price, even if the caller retries after a lost
	// response. A changed rate must not collide with the earlier request.
	if chatID := metadata["chatId"]; chatID != "" {
		params.SetIdempotencyKey(fmt.Sprintf("%schat-%s-intent-%d%s", g.idempotencyPrefix, chatID, amount, currency))
	}

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &services.PaymentIntent{IntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, intentID string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	params.SetIdempotencyKey(g.idempotencyPrefix + "refund-" + intentID)

	if _, err := g.api.Refunds.New(params); err != nil {
		return fmt.Errorf("refund payment intent %s: %w", intentID, err)
	}
	return nil
}

// CancelIntent voids an unpaid intent so its client secret can no longer be
// used. An intent that is already cancelled is left alone.
func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	intent, err := g.getIntent(ctx, intentID)
	if err != nil {
		return err
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusCanceled:
		return nil
	case stripe.PaymentIntentStatusSucceeded:
		return fmt.Errorf("cancel payment intent %s: %w", intentID, ErrIntentSucceeded)
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", intentID, err)
	}
	return nil
}

// IntentSucceeded reports whether the charge behind intentID has completed.
func (g *StripeGateway) IntentSucceeded(ctx context.Context, intentID string) (bool, error) {
	intent, err := g.getIntent(ctx, intentID)
	if err != nil {
		return false, err
	}
	return intent.Status == stripe.PaymentIntentStatusSucceeded, nil
}

func (g *StripeGateway) getIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent %s: %w", intentID, err)
	}
	return intent, nil
}

type WebhookEventKind string

const (
	WebhookPaymentSucceeded WebhookEventKind = "payment_succeeded"
	WebhookPaymentFailed    WebhookEventKind = "payment_failed"
	WebhookIgnored          WebhookEventKind = "ignored"
)

type WebhookEvent struct {
	ID       string
	Kind     WebhookEventKind
	Type     string
	IntentID string
}

// ParseWebhook verifies the Stripe-Signature header and extracts the payment
// intent the event refers to.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify webhook: %w", err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type), Kind: WebhookIgnored}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		out.Kind = WebhookPaymentSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		out.Kind = WebhookPaymentFailed
	default:
		return out, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	out.IntentID = intent.ID
	return out, nil
}
