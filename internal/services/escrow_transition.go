package services

import (
	"context"
	"errors"
	"time"

	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/repository"
)

// EscrowTransition moves a payment and its chat together. Both rows are
// locked, both pre-states are checked, and both writes go through the same
// unit of work so neither change is observable without the other.
type EscrowTransition struct {
	Name        string
	PaymentFrom models.PaymentStatus
	PaymentTo   models.PaymentStatus
	ChatFrom    []models.ChatStatus
	ChatTo      models.ChatStatus
	// SkipTerminalChat leaves a chat that is already COMPLETED or CANCELLED untouched.
	SkipTerminalChat bool
}

var (
	TransitionUnlock = EscrowTransition{
		Name:        "unlock",
		PaymentFrom: models.PaymentStatusCreated,
		PaymentTo:   models.PaymentStatusHeld,
		ChatFrom:    []models.ChatStatus{models.ChatStatusPending},
		ChatTo:      models.ChatStatusActive,
	}
	TransitionRelease = EscrowTransition{
		Name:             "release",
		PaymentFrom:      models.PaymentStatusHeld,
		PaymentTo:        models.PaymentStatusReleased,
		ChatFrom:         []models.ChatStatus{models.ChatStatusActive},
		ChatTo:           models.ChatStatusCompleted,
		SkipTerminalChat: true,
	}
	TransitionRefund = EscrowTransition{
		Name:             "refund",
		PaymentFrom:      models.PaymentStatusHeld,
		PaymentTo:        models.PaymentStatusRefunded,
		ChatFrom:         []models.ChatStatus{models.ChatStatusPending, models.ChatStatusActive},
		ChatTo:           models.ChatStatusCancelled,
		SkipTerminalChat: true,
	}
	TransitionFail = EscrowTransition{
		Name:        "fail",
		PaymentFrom: models.PaymentStatusCreated,
		PaymentTo:   models.PaymentStatusFailed,
		ChatFrom:    []models.ChatStatus{models.ChatStatusPending},
		ChatTo:      models.ChatStatusCancelled,
	}
)

// EscrowState is a chat and its payment as read under row locks.
type EscrowState struct {
	Chat    *models.ChatSession
	Payment *models.Payment
}

// lockEscrowState locks the chat first and then its payment. Every unit of
// work that touches both rows uses this order.
func lockEscrowState(ctx context.Context, tx repository.Store, chatID int64) (*EscrowState, error) {
	chat, err := tx.Chats().GetByIDForUpdate(ctx, chatID)
	if err != nil {
		return nil, notFoundOr(err, "chat not found")
	}
	payment, err := tx.Payments().GetByChatIDForUpdate(ctx, chatID)
	if err != nil {
		return nil, notFoundOr(err, "payment not found")
	}
	return &EscrowState{Chat: chat, Payment: payment}, nil
}

func (t EscrowTransition) touchesChat(chat *models.ChatSession) bool {
	return !(t.SkipTerminalChat && chat.Status.IsTerminal())
}

// Check validates both pre-states without writing anything.
func (t EscrowTransition) Check(state *EscrowState) error {
	if state.Payment.Status != t.PaymentFrom {
		return invalidState("payment is " + string(state.Payment.Status) + ", expected " + string(t.PaymentFrom))
	}
	if !t.touchesChat(state.Chat) {
		return nil
	}
	for _, from := range t.ChatFrom {
		if state.Chat.Status == from {
			return nil
		}
	}
	return invalidState("chat is " + string(state.Chat.Status))
}

// Commit writes both rows with compare-and-set updates. A lost race surfaces
// as an invalid state error and the caller's unit of work rolls back.
func (t EscrowTransition) Commit(
	ctx context.Context,
	tx repository.Store,
	state *EscrowState,
	at time.Time,
) (*EscrowState, error) {
	payment, err := tx.Payments().UpdateStatusIfCurrent(ctx, state.Payment.ID, t.PaymentFrom, t.PaymentTo, at)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalidState("payment changed concurrently")
		}
		return nil, err
	}

	chat := state.Chat
	if t.touchesChat(state.Chat) {
		chat, err = tx.Chats().UpdateStatusIfCurrent(ctx, state.Chat.ID, state.Chat.Status, t.ChatTo)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, invalidState("chat changed concurrently")
			}
			return nil, err
		}
	}

	return &EscrowState{Chat: chat, Payment: payment}, nil
}

// Apply checks and commits in one call.
func (t EscrowTransition) Apply(
	ctx context.Context,
	tx repository.Store,
	state *EscrowState,
	at time.Time,
) (*EscrowState, error) {
	if err := t.Check(state); err != nil {
		return nil, err
	}
	return t.Commit(ctx, tx, state, at)
}
