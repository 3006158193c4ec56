package services

import (
	"context"
	"errors"
	"time"

	"github.com/kartikrastogi18/FitConnect/internal/metrics"
	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/repository"
	"github.com/sirupsen/logrus"
)

// ChatService owns chat creation and the chat-only status transitions. Every
// transition that also moves a payment goes through an EscrowTransition.
type ChatService struct {
	store   repository.Store
	gateway PaymentGateway
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewChatService(store repository.Store, gateway PaymentGateway, log logrus.FieldLogger) *ChatService {
	return &ChatService{store: store, gateway: gateway, log: log, now: time.Now}
}

// CreateAIChat returns the trainee's active AI chat, creating it if needed.
func (s *ChatService) CreateAIChat(ctx context.Context, actor Actor) (*models.ChatSession, bool, error) {
	if actor.Role != models.RoleTrainee {
		return nil, false, forbidden("only trainees can start an AI chat")
	}

	chat, created, err := s.store.Chats().CreateOrGetLive(ctx, repository.CreateChatInput{
		TraineeID: actor.ID,
		Type:      models.ChatTypeAI,
		Status:    models.ChatStatusActive,
	})
	if err != nil {
		return nil, false, createChatErr(err)
	}
	return chat, created, nil
}

// CreateTrainerChat returns the live chat between the trainee and trainer,
// creating a PENDING one if none exists.
func (s *ChatService) CreateTrainerChat(
	ctx context.Context,
	actor Actor,
	trainerID int64,
) (*models.ChatSession, bool, error) {
	if actor.Role != models.RoleTrainee {
		return nil, false, forbidden("only trainees can start a trainer chat")
	}
	if trainerID <= 0 || trainerID == actor.ID {
		return nil, false, invalidInput("a valid trainer_id is required")
	}

	trainer, err := s.store.Users().GetByID(ctx, trainerID)
	if err != nil {
		return nil, false, notFoundOr(err, "trainer not found")
	}
	if trainer.Role != models.RoleTrainer {
		return nil, false, notFound("trainer not found")
	}

	chat, created, err := s.store.Chats().CreateOrGetLive(ctx, repository.CreateChatInput{
		TraineeID: actor.ID,
		TrainerID: &trainerID,
		Type:      models.ChatTypeTrainer,
		Status:    models.ChatStatusPending,
	})
	if err != nil {
		return nil, false, createChatErr(err)
	}
	return chat, created, nil
}

func createChatErr(err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return conflict("a live chat already exists, retry the request")
	}
	return err
}

func (s *ChatService) ListChats(ctx context.Context, actor Actor) ([]models.ChatSession, error) {
	if actor.Role != models.RoleTrainee && actor.Role != models.RoleTrainer {
		return nil, forbidden("only trainees and trainers have chats")
	}
	return s.store.Chats().ListForParticipant(ctx, actor.ID)
}

func (s *ChatService) GetChat(ctx context.Context, actor Actor, chatID int64) (*models.ChatDetail, error) {
	chat, err := loadReadableChat(ctx, s.store, actor, chatID)
	if err != nil {
		return nil, err
	}

	detail := &models.ChatDetail{ChatSession: *chat}
	if chat.Type == models.ChatTypeTrainer {
		payment, err := s.store.Payments().GetByChatID(ctx, chatID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		detail.Payment = payment
	}
	return detail, nil
}

// Complete closes an ACTIVE chat. It does not settle the payment; release is
// a separate administrator action.
func (s *ChatService) Complete(ctx context.Context, actor Actor, chatID int64) (*models.ChatSession, error) {
	if chatID <= 0 {
		return nil, invalidInput("chat id is required")
	}
	chat, err := s.store.Chats().GetByID(ctx, chatID)
	if err != nil {
		return nil, notFoundOr(err, "chat not found")
	}
	if !canComplete(actor, chat) {
		return nil, forbidden("not allowed to complete this chat")
	}
	if chat.Status != models.ChatStatusActive {
		return nil, invalidState("chat is " + string(chat.Status))
	}

	updated, err := s.store.Chats().UpdateStatusIfCurrent(ctx, chatID, models.ChatStatusActive, models.ChatStatusCompleted)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalidState("chat changed concurrently")
		}
		return nil, err
	}
	return updated, nil
}

func canComplete(actor Actor, chat *models.ChatSession) bool {
	if actor.IsAdmin() {
		return true
	}
	if chat.Type == models.ChatTypeAI {
		return actor.Role == models.RoleTrainee && chat.TraineeID == actor.ID
	}
	return actor.Role == models.RoleTrainer && chat.TrainerID != nil && *chat.TrainerID == actor.ID
}

// Cancel withdraws a PENDING chat. An unpaid CREATED payment fails with it in
// the same unit of work, after its gateway intent is voided so it can no
// longer be charged. ACTIVE chats are only cancelled through a refund.
func (s *ChatService) Cancel(ctx context.Context, actor Actor, chatID int64) (*models.ChatDetail, error) {
	if chatID <= 0 {
		return nil, invalidInput("chat id is required")
	}

	var detail *models.ChatDetail
	failed := false
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		chat, err := tx.Chats().GetByIDForUpdate(ctx, chatID)
		if err != nil {
			return notFoundOr(err, "chat not found")
		}
		if !actor.IsAdmin() && (actor.Role != models.RoleTrainee || chat.TraineeID != actor.ID) {
			return forbidden("not allowed to cancel this chat")
		}
		if chat.Status != models.ChatStatusPending {
			if chat.Status == models.ChatStatusActive {
				return invalidState("an active chat can only be cancelled by a refund")
			}
			return invalidState("chat is " + string(chat.Status))
		}

		payment, err := tx.Payments().GetByChatIDForUpdate(ctx, chatID)
		switch {
		case err == nil:
			state := &EscrowState{Chat: chat, Payment: payment}
			if err := TransitionFail.Check(state); err != nil {
				return err
			}
			if err := s.voidIntent(ctx, payment); err != nil {
				return err
			}
			state, err = TransitionFail.Commit(ctx, tx, state, s.now())
			if err != nil {
				return err
			}
			detail = &models.ChatDetail{ChatSession: *state.Chat, Payment: state.Payment}
			failed = true
			return nil
		case errors.Is(err, repository.ErrNotFound):
			updated, err := tx.Chats().UpdateStatusIfCurrent(ctx, chatID, models.ChatStatusPending, models.ChatStatusCancelled)
			if err != nil {
				return err
			}
			detail = &models.ChatDetail{ChatSession: *updated}
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	if failed {
		metrics.ObserveTransition(string(TransitionFail.PaymentFrom), string(TransitionFail.PaymentTo))
		s.log.WithFields(logrus.Fields{"chat_id": chatID, "payment_id": detail.Payment.ID}).
			Info("pending chat cancelled with its unpaid payment")
	}
	return detail, nil
}

// loadReadableChat returns the chat if actor may read it: its trainee, its
// trainer or an administrator.
func loadReadableChat(ctx context.Context, store repository.Store, actor Actor, chatID int64) (*models.ChatSession, error) {
	if chatID <= 0 {
		return nil, invalidInput("chat id is required")
	}
	chat, err := store.Chats().GetByID(ctx, chatID)
	if err != nil {
		return nil, notFoundOr(err, "chat not found")
	}
	if !actor.IsAdmin() && !chat.IsParticipant(actor.ID) {
		return nil, forbidden("not a participant of this chat")
	}
	return chat, nil
}

func (s *ChatService) voidIntent(ctx context.Context, payment *models.Payment) error {
	if s.gateway == nil {
		return newError(KindUpstream, "payment gateway is not configured")
	}
	err := s.gateway.CancelIntent(ctx, payment.GatewayRef)
	metrics.ObserveGatewayCall("cancel_intent", err)
	if err != nil {
		s.log.WithFields(logrus.Fields{"payment_id": payment.ID, "error": err}).Warn("gateway intent cancel failed")
		return wrapError(KindUpstream, "payment gateway could not cancel the payment; it may already be paid", err)
	}
	return nil
}
