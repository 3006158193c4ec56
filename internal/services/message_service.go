package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kartikrastogi18/FitConnect/internal/metrics"
	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAIContextWindow = 10
	DefaultAITimeout       = 30 * time.Second
	DefaultAISystemPrompt  = "You are a fitness coach. Answer in 3-4 lines."
	AIFallbackReply        = "AI is temporarily unavailable. Please try again."
	maxMessageLength       = 4000
)

type MessageConfig struct {
	// ContextWindow is how many of the newest messages, including the one
	// just sent, are passed to the completion provider.
	ContextWindow int
	SystemPrompt  string
	AITimeout     time.Duration
}

// MessageService is the gate in front of message reads and writes.
type MessageService struct {
	store    repository.Store
	bridge   CompletionBridge
	notifier Notifier
	cfg      MessageConfig
	log      logrus.FieldLogger
}

type SendResult struct {
	Message *models.Message `json:"message"`
	// Reply is set for AI chats and holds either the provider's answer or
	// the fallback text.
	Reply *models.Message `json:"reply,omitempty"`
}

func NewMessageService(
	store repository.Store,
	bridge CompletionBridge,
	notifier Notifier,
	cfg MessageConfig,
	log logrus.FieldLogger,
) *MessageService {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultAIContextWindow
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = DefaultAITimeout
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultAISystemPrompt
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &MessageService{
		store:    store,
		bridge:   bridge,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

func (s *MessageService) Send(ctx context.Context, actor Actor, chatID int64, content string) (*SendResult, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, invalidInput("message content is required")
	}
	if utf8.RuneCountInString(trimmed) > maxMessageLength {
		return nil, invalidInput("message content is too long")
	}
	if chatID <= 0 {
		return nil, invalidInput("chat id is required")
	}

	var (
		chat    *models.ChatSession
		message *models.Message
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		chat, err = tx.Chats().GetByIDForUpdate(ctx, chatID)
		if err != nil {
			return notFoundOr(err, "chat not found")
		}
		if chat.Status != models.ChatStatusActive {
			return forbidden("chat is locked or inactive")
		}

		role, err := s.authorizeSend(ctx, tx, actor, chat)
		if err != nil {
			return err
		}

		message, err = tx.Messages().Create(ctx, chat.ID, role, trimmed)
		if err != nil {
			return err
		}
		return tx.Chats().Touch(ctx, chat.ID)
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesSentTotal.WithLabelValues(string(chat.Type)).Inc()

	if chat.Type == models.ChatTypeAI {
		reply, err := s.replyAsAI(ctx, chat)
		if err != nil {
			return nil, err
		}
		return &SendResult{Message: message, Reply: reply}, nil
	}

	if counterpart, ok := chat.CounterpartOf(actor.ID); ok {
		s.notifier.SendTo(counterpart, RealtimeEvent{
			Type:    EventNewMessage,
			ChatID:  chat.ID,
			Message: message,
		})
	}
	return &SendResult{Message: message}, nil
}

// authorizeSend returns the sender role the message is stored under.
func (s *MessageService) authorizeSend(
	ctx context.Context,
	tx repository.Store,
	actor Actor,
	chat *models.ChatSession,
) (models.SenderRole, error) {
	if chat.Type == models.ChatTypeAI {
		if actor.Role != models.RoleTrainee || chat.TraineeID != actor.ID {
			return "", forbidden("only the chat's trainee can message the AI coach")
		}
		return models.SenderTrainee, nil
	}

	var role models.SenderRole
	switch {
	case actor.Role == models.RoleTrainee && chat.TraineeID == actor.ID:
		role = models.SenderTrainee
	case actor.Role == models.RoleTrainer && chat.TrainerID != nil && *chat.TrainerID == actor.ID:
		role = models.SenderTrainer
	default:
		return "", forbidden("not a participant of this chat")
	}

	// Checked on every send, independently of how the chat became ACTIVE.
	payment, err := tx.Payments().GetByChatID(ctx, chat.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", forbidden("chat has no held payment")
		}
		return "", err
	}
	if payment.Status != models.PaymentStatusHeld {
		return "", forbidden("chat has no held payment")
	}
	return role, nil
}

// replyAsAI asks the completion provider for an answer and persists it. Any
// provider failure, timeout or empty answer persists the fallback text instead.
func (s *MessageService) replyAsAI(ctx context.Context, chat *models.ChatSession) (*models.Message, error) {
	history, err := s.store.Messages().ListRecent(ctx, chat.ID, s.cfg.ContextWindow)
	if err != nil {
		return nil, err
	}

	content := AIFallbackReply
	outcome := "fallback"
	if s.bridge != nil {
		aiCtx, cancel := context.WithTimeout(ctx, s.cfg.AITimeout)
		reply, err := s.bridge.Complete(aiCtx, BuildAIContext(s.cfg.SystemPrompt, history))
		cancel()

		switch {
		case err != nil:
			s.log.WithFields(logrus.Fields{"chat_id": chat.ID, "error": err}).Warn("ai completion failed, using fallback")
		case strings.TrimSpace(reply) == "":
			s.log.WithField("chat_id", chat.ID).Warn("ai completion returned empty reply, using fallback")
		default:
			content = strings.TrimSpace(reply)
			outcome = "reply"
		}
	}
	metrics.AIRepliesTotal.WithLabelValues(outcome).Inc()

	var reply *models.Message
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		reply, err = tx.Messages().Create(ctx, chat.ID, models.SenderAI, content)
		if err != nil {
			return err
		}
		return tx.Chats().Touch(ctx, chat.ID)
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesSentTotal.WithLabelValues(string(chat.Type)).Inc()
	return reply, nil
}

// BuildAIContext prepends the system instruction to the history and maps
// sender roles onto the provider vocabulary.
func BuildAIContext(systemPrompt string, history []models.Message) []ContextMessage {
	out := make([]ContextMessage, 0, len(history)+1)
	out = append(out, ContextMessage{Role: ContextRoleSystem, Content: systemPrompt})
	for _, msg := range history {
		out = append(out, ContextMessage{Role: contextRole(msg.SenderRole), Content: msg.Content})
	}
	return out
}

func contextRole(role models.SenderRole) ContextRole {
	switch role {
	case models.SenderTrainee:
		return ContextRoleUser
	case models.SenderAI:
		return ContextRoleAssistant
	default:
		return ContextRoleSystem
	}
}

// AuthorizeRead returns the chat if actor may read its history.
func (s *MessageService) AuthorizeRead(ctx context.Context, actor Actor, chatID int64) (*models.ChatSession, error) {
	return loadReadableChat(ctx, s.store, actor, chatID)
}

func (s *MessageService) ListMessages(
	ctx context.Context,
	actor Actor,
	chatID int64,
	page int,
	limit int,
) ([]models.Message, int, error) {
	offset, err := pageOffset(page, limit)
	if err != nil {
		return nil, 0, err
	}
	if _, err := loadReadableChat(ctx, s.store, actor, chatID); err != nil {
		return nil, 0, err
	}
	return s.store.Messages().ListByChat(ctx, chatID, limit, offset)
}
