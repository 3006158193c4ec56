package models

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated  PaymentStatus = "CREATED"
	PaymentStatusHeld     PaymentStatus = "HELD"
	PaymentStatusReleased PaymentStatus = "RELEASED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
	PaymentStatusFailed   PaymentStatus = "FAILED"
)

func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusReleased, PaymentStatusRefunded, PaymentStatusFailed:
		return true
	}
	return false
}

// Payment is the escrow record of a trainer chat. Amount is in the smallest
// currency unit and is fixed at creation.
type Payment struct {
	ID         int64         `json:"id"`
	ChatID     int64         `json:"chat_id"`
	TraineeID  int64         `json:"trainee_id"`
	TrainerID  int64         `json:"trainer_id"`
	GatewayRef string        `json:"gateway_ref"`
	Amount     int64         `json:"amount"`
	Currency   string        `json:"currency"`
	Status     PaymentStatus `json:"status"`
	HeldAt     *time.Time    `json:"held_at,omitempty"`
	ReleasedAt *time.Time    `json:"released_at,omitempty"`
	RefundedAt *time.Time    `json:"refunded_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
