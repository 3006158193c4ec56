package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, _ := test.NewNullLogger()
	return NewStripeGateway(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
		BaseURL:       server.URL,
	}, logger)
}

func TestCreateIntentSendsAmountAndMetadata(t *testing.T) {
	var form map[string]string
	var idempotencyKey string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		_ = r.ParseForm()
		idempotencyKey = r.Header.Get("Idempotency-Key")
		form = map[string]string{
			"amount":    r.Form.Get("amount"),
			"currency":  r.Form.Get("currency"),
			"chatId":    r.Form.Get("metadata[chatId]"),
			"automatic": r.Form.Get("automatic_payment_methods[enabled]"),
			"traineeId": r.Form.Get("metadata[traineeId]"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc","amount":19900,"currency":"inr"}`))
	})

	intent, err := gw.CreateIntent(context.Background(), 19900, "inr", map[string]string{
		"chatId":    "42",
		"traineeId": "7",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.IntentID)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)

	assert.Equal(t, "19900", form["amount"])
	assert.Equal(t, "inr", form["currency"])
	assert.Equal(t, "42", form["chatId"])
	assert.Equal(t, "7", form["traineeId"])
	assert.Equal(t, "true", form["automatic"])
	assert.Equal(t, "chat-42-intent-19900inr", idempotencyKey)
}

func TestCreateIntentSurfacesGatewayErrors(t *testing.T) {
	calls := 0
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"try later"}}`))
	})

	_, err := gw.CreateIntent(context.Background(), 100, "inr", nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRefundUsesStoredIntent(t *testing.T) {
	var intentID string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		_ = r.ParseForm()
		intentID = r.Form.Get("payment_intent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund","status":"succeeded"}`))
	})

	require.NoError(t, gw.Refund(context.Background(), "pi_999"))
	assert.Equal(t, "pi_999", intentID)
}

func TestRefundFailure(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"charge already refunded"}}`))
	})

	err := gw.Refund(context.Background(), "pi_999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pi_999")
}

func TestCreateIntentKeyCarriesPrefixAndPrice(t *testing.T) {
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","client_secret":"s"}`))
	}))
	t.Cleanup(server.Close)
	logger, _ := test.NewNullLogger()
	gw := NewStripeGateway(StripeConfig{SecretKey: "sk_test_123", BaseURL: server.URL, IdempotencyPrefix: "staging-"}, logger)

	_, err := gw.CreateIntent(context.Background(), 19900, "inr", map[string]string{"chatId": "42"})
	require.NoError(t, err)
	_, err = gw.CreateIntent(context.Background(), 24900, "inr", map[string]string{"chatId": "42"})
	require.NoError(t, err)

	assert.Equal(t, []string{"staging-chat-42-intent-19900inr", "staging-chat-42-intent-24900inr"}, keys)
}

func intentServer(t *testing.T, status string, cancelled *bool) *StripeGateway {
	return newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_5":
			_, _ = w.Write([]byte(`{"id":"pi_5","object":"payment_intent","status":"` + status + `"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents/pi_5/cancel":
			*cancelled = true
			_, _ = w.Write([]byte(`{"id":"pi_5","object":"payment_intent","status":"canceled"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"no such route"}}`))
		}
	})
}

func TestCancelIntent(t *testing.T) {
	cancelled := false
	require.NoError(t, intentServer(t, "requires_payment_method", &cancelled).CancelIntent(context.Background(), "pi_5"))
	assert.True(t, cancelled)

	cancelled = false
	require.NoError(t, intentServer(t, "canceled", &cancelled).CancelIntent(context.Background(), "pi_5"))
	assert.False(t, cancelled)

	err := intentServer(t, "succeeded", &cancelled).CancelIntent(context.Background(), "pi_5")
	assert.ErrorIs(t, err, ErrIntentSucceeded)
	assert.False(t, cancelled)
}

func TestIntentSucceeded(t *testing.T) {
	cancelled := false
	ok, err := intentServer(t, "succeeded", &cancelled).IntentSucceeded(context.Background(), "pi_5")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = intentServer(t, "processing", &cancelled).IntentSucceeded(context.Background(), "pi_5")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = intentServer(t, "succeeded", &cancelled).IntentSucceeded(context.Background(), "pi_missing")
	assert.Error(t, err)
}

func signedPayload(t *testing.T, payload string, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestParseWebhookPaymentSucceeded(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	payload := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_abc","object":"payment_intent"}}}`

	event, err := gw.ParseWebhook([]byte(payload), signedPayload(t, payload, "whsec_test"))
	require.NoError(t, err)
	assert.Equal(t, WebhookPaymentSucceeded, event.Kind)
	assert.Equal(t, "pi_abc", event.IntentID)
	assert.Equal(t, "evt_1", event.ID)
}

func TestParseWebhookPaymentFailedAndIgnored(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	failed := `{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_def","object":"payment_intent"}}}`
	event, err := gw.ParseWebhook([]byte(failed), signedPayload(t, failed, "whsec_test"))
	require.NoError(t, err)
	assert.Equal(t, WebhookPaymentFailed, event.Kind)
	assert.Equal(t, "pi_def", event.IntentID)

	other := `{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`
	event, err = gw.ParseWebhook([]byte(other), signedPayload(t, other, "whsec_test"))
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, event.Kind)
	assert.Empty(t, event.IntentID)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	payload := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_abc"}}}`

	_, err := gw.ParseWebhook([]byte(payload), signedPayload(t, payload, "whsec_other"))
	assert.Error(t, err)

	logger, _ := test.NewNullLogger()
	unconfigured := NewStripeGateway(StripeConfig{SecretKey: "sk_test"}, logger)
	_, err = unconfigured.ParseWebhook([]byte(payload), "t=1,v1=abc")
	assert.ErrorIs(t, err, ErrWebhookNotConfigured)
}
