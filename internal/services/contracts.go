package services

import (
	"context"

	"github.com/kartikrastogi18/FitConnect/internal/models"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   int64
	Role models.Role
}

// SystemActor is used by scheduled jobs. It is treated as an administrator.
var SystemActor = Actor{Role: models.RoleSystem}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleSystem
}

type PaymentIntent struct {
	IntentID     string
	ClientSecret string
}

// PaymentGateway is the remote payment provider. Calls are not retried.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*PaymentIntent, error)
	Refund(ctx context.Context, intentID string) error
	// CancelIntent voids an intent that has not been paid. It fails if the
	// charge already succeeded.
	CancelIntent(ctx context.Context, intentID string) error
	IntentSucceeded(ctx context.Context, intentID string) (bool, error)
}

// ContextRole is the role vocabulary understood by completion providers.
type ContextRole string

const (
	ContextRoleUser      ContextRole = "user"
	ContextRoleAssistant ContextRole = "assistant"
	ContextRoleSystem    ContextRole = "system"
)

type ContextMessage struct {
	Role    ContextRole `json:"role"`
	Content string      `json:"content"`
}

type CompletionBridge interface {
	Complete(ctx context.Context, messages []ContextMessage) (string, error)
}

const (
	EventNewMessage = "new_message"
	EventTyping     = "typing"
	EventError      = "error"
)

type RealtimeEvent struct {
	Type     string          `json:"type"`
	ChatID   int64           `json:"chat_id,omitempty"`
	Message  *models.Message `json:"message,omitempty"`
	UserID   int64           `json:"user_id,omitempty"`
	IsTyping *bool           `json:"is_typing,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Notifier delivers events to addressable channels. Implementations must not
// block the caller on slow connections.
type Notifier interface {
	SendTo(userID int64, event RealtimeEvent)
	BroadcastToChat(chatID int64, event RealtimeEvent, exceptUserID int64)
}

type noopNotifier struct{}

func (noopNotifier) SendTo(int64, RealtimeEvent)                 {}
func (noopNotifier) BroadcastToChat(int64, RealtimeEvent, int64) {}
