package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/kartikrastogi18/FitConnect/internal/metrics"
	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/repository"
	"github.com/sirupsen/logrus"
)

type EscrowConfig struct {
	Currency         string
	DefaultRateMinor int64
}

type EscrowService struct {
	store   repository.Store
	gateway PaymentGateway
	cfg     EscrowConfig
	log     logrus.FieldLogger
	now     func() time.Time
}

// PaymentCheckout is returned to the trainee so the client can complete the
// charge with the gateway.
type PaymentCheckout struct {
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret"`
}

func NewEscrowService(
	store repository.Store,
	gateway PaymentGateway,
	cfg EscrowConfig,
	log logrus.FieldLogger,
) *EscrowService {
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	return &EscrowService{
		store:   store,
		gateway: gateway,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

func (s *EscrowService) CreatePayment(ctx context.Context, actor Actor, chatID int64) (*PaymentCheckout, error) {
	if actor.Role != models.RoleTrainee {
		return nil, forbidden("only trainees can pay for a chat")
	}
	if chatID <= 0 {
		return nil, invalidInput("chat_id is required")
	}
	if s.gateway == nil {
		return nil, newError(KindUpstream, "payment gateway is not configured")
	}

	var checkout *PaymentCheckout
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		// The chat row lock serializes concurrent attempts for the same chat
		// so at most one gateway intent is created per chat.
		chat, err := tx.Chats().GetByIDForUpdate(ctx, chatID)
		if err != nil {
			return notFoundOr(err, "chat not found")
		}
		if chat.Type != models.ChatTypeTrainer || chat.TrainerID == nil {
			return invalidInput("payments apply only to trainer chats")
		}
		if chat.TraineeID != actor.ID {
			return forbidden("only the chat's trainee can pay for it")
		}
		if chat.Status != models.ChatStatusPending {
			return invalidState("chat is " + string(chat.Status))
		}
		if _, err := tx.Payments().GetByChatID(ctx, chatID); err == nil {
			return conflict("a payment already exists for this chat")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		amount, err := s.sessionRate(ctx, tx, *chat.TrainerID)
		if err != nil {
			return err
		}

		intent, err := s.gateway.CreateIntent(ctx, amount, s.cfg.Currency, map[string]string{
			"chatId":    strconv.FormatInt(chat.ID, 10),
			"traineeId": strconv.FormatInt(chat.TraineeID, 10),
			"trainerId": strconv.FormatInt(*chat.TrainerID, 10),
		})
		metrics.ObserveGatewayCall("create_intent", err)
		if err != nil {
			s.log.WithFields(logrus.Fields{"chat_id": chat.ID, "error": err}).Warn("payment intent creation failed")
			return wrapError(KindUpstream, "payment gateway failed to create the payment", err)
		}

		payment, err := tx.Payments().Create(ctx, repository.CreatePaymentInput{
			ChatID:     chat.ID,
			TraineeID:  chat.TraineeID,
			TrainerID:  *chat.TrainerID,
			GatewayRef: intent.IntentID,
			Amount:     amount,
			Currency:   s.cfg.Currency,
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflict("a payment already exists for this chat")
			}
			s.log.WithFields(logrus.Fields{
				"chat_id":     chat.ID,
				"gateway_ref": intent.IntentID,
				"error":       err,
			}).Error("payment intent created but not recorded")
			return err
		}

		checkout = &PaymentCheckout{Payment: payment, ClientSecret: intent.ClientSecret}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return checkout, nil
}

// sessionRate is the trainer's configured rate, or the platform default.
func (s *EscrowService) sessionRate(ctx context.Context, tx repository.Store, trainerID int64) (int64, error) {
	profile, err := tx.TrainerProfiles().GetByUserID(ctx, trainerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.cfg.DefaultRateMinor, nil
		}
		return 0, err
	}
	if profile.SessionRateMinor == nil {
		return s.cfg.DefaultRateMinor, nil
	}
	return *profile.SessionRateMinor, nil
}

// ConfirmHeld marks the chat's payment HELD and unlocks the chat once the
// gateway reports the charge as succeeded. A payment that is already HELD is
// returned unchanged.
func (s *EscrowService) ConfirmHeld(ctx context.Context, actor Actor, chatID int64) (*EscrowState, error) {
	if chatID <= 0 {
		return nil, invalidInput("chat_id is required")
	}
	return s.confirmHeld(ctx, chatID, func(chat *models.ChatSession) error {
		if actor.Role != models.RoleTrainee || chat.TraineeID != actor.ID {
			return forbidden("only the chat's trainee can confirm its payment")
		}
		return nil
	})
}

// ConfirmHeldByGatewayRef is the gateway callback path of ConfirmHeld. The
// signed callback is the gateway's own word, so the intent is not queried
// again. A charge that lands on a FAILED payment is refunded.
func (s *EscrowService) ConfirmHeldByGatewayRef(ctx context.Context, gatewayRef string) (*EscrowState, error) {
	payment, err := s.paymentByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return nil, err
	}
	return s.confirmHeld(ctx, payment.ChatID, nil)
}

// confirmHeld runs the unlock. authorize is nil on the gateway callback path.
func (s *EscrowService) confirmHeld(
	ctx context.Context,
	chatID int64,
	authorize func(chat *models.ChatSession) error,
) (*EscrowState, error) {
	fromGateway := authorize == nil

	var (
		result     *EscrowState
		changed    bool
		lateCharge *models.Payment
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		state, err := lockEscrowState(ctx, tx, chatID)
		if err != nil {
			return err
		}
		if !fromGateway {
			if err := authorize(state.Chat); err != nil {
				return err
			}
		}
		if state.Payment.Status == models.PaymentStatusHeld {
			result = state
			return nil
		}
		if fromGateway && state.Payment.Status == models.PaymentStatusFailed {
			lateCharge = state.Payment
			return nil
		}

		if !fromGateway {
			if err := TransitionUnlock.Check(state); err != nil {
				return err
			}
			if err := s.verifyCharge(ctx, state.Payment); err != nil {
				return err
			}
		}

		result, err = TransitionUnlock.Apply(ctx, tx, state, s.now())
		changed = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}
	if lateCharge != nil {
		return nil, s.refundLateCharge(ctx, lateCharge)
	}

	if changed {
		s.recordTransition(TransitionUnlock, result)
	}
	return result, nil
}

// verifyCharge asks the gateway whether the payment's charge went through.
func (s *EscrowService) verifyCharge(ctx context.Context, payment *models.Payment) error {
	if s.gateway == nil {
		return newError(KindUpstream, "payment gateway is not configured")
	}
	paid, err := s.gateway.IntentSucceeded(ctx, payment.GatewayRef)
	metrics.ObserveGatewayCall("get_intent", err)
	if err != nil {
		s.log.WithFields(logrus.Fields{"payment_id": payment.ID, "error": err}).Warn("payment status lookup failed")
		return wrapError(KindUpstream, "payment gateway failed to report the payment status", err)
	}
	if !paid {
		return invalidState("payment has not been completed")
	}
	return nil
}

// refundLateCharge returns money captured for a payment that had already
// failed, for example after its pending chat was cancelled. A refund failure is
// reported as upstream so the callback is delivered again.
func (s *EscrowService) refundLateCharge(ctx context.Context, payment *models.Payment) error {
	entry := s.log.WithFields(logrus.Fields{
		"payment_id":  payment.ID,
		"chat_id":     payment.ChatID,
		"gateway_ref": payment.GatewayRef,
	})
	if s.gateway == nil {
		entry.Error("charge succeeded on a failed payment but no gateway is configured to refund it")
		return newError(KindUpstream, "payment gateway is not configured")
	}

	err := s.gateway.Refund(ctx, payment.GatewayRef)
	metrics.ObserveGatewayCall("refund", err)
	if err != nil {
		entry.WithError(err).Error("refund of late charge failed")
		return wrapError(KindUpstream, "payment gateway failed to refund the late charge", err)
	}
	entry.Warn("charge succeeded on a failed payment; refunded")
	return invalidState("payment is FAILED; the charge was refunded")
}

// Release pays out a HELD payment and completes its chat.
func (s *EscrowService) Release(ctx context.Context, actor Actor, paymentID int64) (*EscrowState, error) {
	if !actor.IsAdmin() {
		return nil, forbidden("only administrators can release payments")
	}
	payment, err := s.paymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	var result *EscrowState
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		state, err := lockEscrowState(ctx, tx, payment.ChatID)
		if err != nil {
			return err
		}
		result, err = TransitionRelease.Apply(ctx, tx, state, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(TransitionRelease, result)
	return result, nil
}

// Refund reverses a HELD payment with the gateway and cancels its chat. If the
// gateway call fails nothing is written.
func (s *EscrowService) Refund(ctx context.Context, actor Actor, paymentID int64) (*EscrowState, error) {
	if !actor.IsAdmin() {
		return nil, forbidden("only administrators can refund payments")
	}
	if s.gateway == nil {
		return nil, newError(KindUpstream, "payment gateway is not configured")
	}
	payment, err := s.paymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	var result *EscrowState
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		state, err := lockEscrowState(ctx, tx, payment.ChatID)
		if err != nil {
			return err
		}
		if err := TransitionRefund.Check(state); err != nil {
			return err
		}

		err = s.gateway.Refund(ctx, state.Payment.GatewayRef)
		metrics.ObserveGatewayCall("refund", err)
		if err != nil {
			s.log.WithFields(logrus.Fields{"payment_id": state.Payment.ID, "error": err}).Warn("gateway refund failed")
			return wrapError(KindUpstream, "payment gateway failed to refund the payment", err)
		}

		result, err = TransitionRefund.Commit(ctx, tx, state, s.now())
		if err != nil {
			s.log.WithFields(logrus.Fields{"payment_id": state.Payment.ID, "error": err}).
				Error("gateway refund succeeded but ledger update failed")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(TransitionRefund, result)
	return result, nil
}

// FailByGatewayRef records a declined charge: CREATED moves to FAILED, the
// intent is voided and the pending chat is cancelled. A payment already FAILED
// is returned unchanged.
func (s *EscrowService) FailByGatewayRef(ctx context.Context, gatewayRef string) (*EscrowState, error) {
	payment, err := s.paymentByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return nil, err
	}

	var (
		result  *EscrowState
		changed bool
	)
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		state, err := lockEscrowState(ctx, tx, payment.ChatID)
		if err != nil {
			return err
		}
		if state.Payment.Status == models.PaymentStatusFailed {
			result = state
			return nil
		}
		if err := TransitionFail.Check(state); err != nil {
			return err
		}
		// A declined intent can still be retried by the client; void it so
		// the cancelled chat cannot be charged later.
		if s.gateway != nil {
			err := s.gateway.CancelIntent(ctx, state.Payment.GatewayRef)
			metrics.ObserveGatewayCall("cancel_intent", err)
			if err != nil {
				return wrapError(KindUpstream, "payment gateway could not cancel the payment", err)
			}
		}
		result, err = TransitionFail.Commit(ctx, tx, state, s.now())
		changed = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.recordTransition(TransitionFail, result)
	}
	return result, nil
}

// AutoRelease releases payments that have been HELD for longer than heldFor.
// It returns how many were released.
func (s *EscrowService) AutoRelease(ctx context.Context, heldFor time.Duration, batch int) (int, error) {
	if heldFor <= 0 || batch <= 0 {
		return 0, invalidInput("auto release window and batch size must be positive")
	}

	due, err := s.store.Payments().ListHeldBefore(ctx, s.now().Add(-heldFor), batch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, payment := range due {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		if _, err := s.Release(ctx, SystemActor, payment.ID); err != nil {
			// Another actor may have settled the payment since it was listed.
			if errors.Is(err, ErrInvalidState) {
				continue
			}
			s.log.WithFields(logrus.Fields{"payment_id": payment.ID, "error": err}).Error("auto release failed")
			continue
		}
		released++
	}
	return released, nil
}

func (s *EscrowService) GetPayment(ctx context.Context, actor Actor, paymentID int64) (*models.Payment, error) {
	payment, err := s.paymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && payment.TraineeID != actor.ID && payment.TrainerID != actor.ID {
		return nil, forbidden("not a party to this payment")
	}
	return payment, nil
}

func (s *EscrowService) ListMyPayments(
	ctx context.Context,
	actor Actor,
	page int,
	limit int,
) ([]models.Payment, int, error) {
	if actor.Role != models.RoleTrainee && actor.Role != models.RoleTrainer {
		return nil, 0, forbidden("only trainees and trainers have payments")
	}
	offset, err := pageOffset(page, limit)
	if err != nil {
		return nil, 0, err
	}

	return s.store.Payments().List(ctx, repository.PaymentListFilter{
		ParticipantID: actor.ID,
		Limit:         limit,
		Offset:        offset,
	})
}

func (s *EscrowService) ListPayments(
	ctx context.Context,
	actor Actor,
	status string,
	page int,
	limit int,
) ([]models.Payment, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, forbidden("only administrators can list all payments")
	}
	offset, err := pageOffset(page, limit)
	if err != nil {
		return nil, 0, err
	}

	filter := repository.PaymentListFilter{Limit: limit, Offset: offset}
	if status = strings.ToUpper(strings.TrimSpace(status)); status != "" {
		parsed, ok := parsePaymentStatus(status)
		if !ok {
			return nil, 0, invalidInput("unknown payment status " + status)
		}
		filter.Status = parsed
	}
	return s.store.Payments().List(ctx, filter)
}

// SetTrainerRate stores the per-session price charged for a trainer's chats.
// It only affects payments created afterwards.
func (s *EscrowService) SetTrainerRate(
	ctx context.Context,
	actor Actor,
	trainerID int64,
	rateMinor int64,
) (*models.TrainerProfile, error) {
	if !actor.IsAdmin() {
		return nil, forbidden("only administrators can set trainer rates")
	}
	if trainerID <= 0 {
		return nil, invalidInput("trainer id is required")
	}
	if rateMinor < 0 {
		return nil, invalidInput("rate must not be negative")
	}

	trainer, err := s.store.Users().GetByID(ctx, trainerID)
	if err != nil {
		return nil, notFoundOr(err, "trainer not found")
	}
	if trainer.Role != models.RoleTrainer {
		return nil, notFound("trainer not found")
	}
	return s.store.TrainerProfiles().SetSessionRate(ctx, trainerID, rateMinor)
}

func (s *EscrowService) paymentByID(ctx context.Context, paymentID int64) (*models.Payment, error) {
	if paymentID <= 0 {
		return nil, invalidInput("payment id is required")
	}
	payment, err := s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, notFoundOr(err, "payment not found")
	}
	return payment, nil
}

func (s *EscrowService) paymentByGatewayRef(ctx context.Context, gatewayRef string) (*models.Payment, error) {
	if strings.TrimSpace(gatewayRef) == "" {
		return nil, invalidInput("gateway reference is required")
	}
	payment, err := s.store.Payments().GetByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return nil, notFoundOr(err, "payment not found")
	}
	return payment, nil
}

func (s *EscrowService) recordTransition(t EscrowTransition, state *EscrowState) {
	metrics.ObserveTransition(string(t.PaymentFrom), string(t.PaymentTo))
	s.log.WithFields(logrus.Fields{
		"transition":  t.Name,
		"payment_id":  state.Payment.ID,
		"chat_id":     state.Chat.ID,
		"chat_status": state.Chat.Status,
	}).Info("escrow transition committed")
}

func parsePaymentStatus(value string) (models.PaymentStatus, bool) {
	switch status := models.PaymentStatus(value); status {
	case models.PaymentStatusCreated,
		models.PaymentStatusHeld,
		models.PaymentStatusReleased,
		models.PaymentStatusRefunded,
		models.PaymentStatusFailed:
		return status, true
	}
	return "", false
}
