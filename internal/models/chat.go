package models

import "time"

type ChatType string

const (
	ChatTypeAI      ChatType = "AI"
	ChatTypeTrainer ChatType = "TRAINER"
)

type ChatStatus string

const (
	ChatStatusPending   ChatStatus = "PENDING"
	ChatStatusActive    ChatStatus = "ACTIVE"
	ChatStatusCompleted ChatStatus = "COMPLETED"
	ChatStatusCancelled ChatStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition may leave the status.
func (s ChatStatus) IsTerminal() bool {
	return s == ChatStatusCompleted || s == ChatStatusCancelled
}

// IsLive reports whether the status counts against the one-live-chat rules.
func (s ChatStatus) IsLive() bool {
	return s == ChatStatusPending || s == ChatStatusActive
}

type ChatSession struct {
	ID        int64      `json:"id"`
	TraineeID int64      `json:"trainee_id"`
	TrainerID *int64     `json:"trainer_id"`
	Type      ChatType   `json:"type"`
	Status    ChatStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsParticipant reports whether userID is the trainee or the assigned trainer.
func (c *ChatSession) IsParticipant(userID int64) bool {
	if c.TraineeID == userID {
		return true
	}
	return c.TrainerID != nil && *c.TrainerID == userID
}

// CounterpartOf returns the other participant of a trainer chat.
func (c *ChatSession) CounterpartOf(userID int64) (int64, bool) {
	if c.TrainerID == nil {
		return 0, false
	}
	switch userID {
	case c.TraineeID:
		return *c.TrainerID, true
	case *c.TrainerID:
		return c.TraineeID, true
	default:
		return 0, false
	}
}

type SenderRole string

const (
	SenderTrainee SenderRole = "trainee"
	SenderTrainer SenderRole = "trainer"
	SenderAI      SenderRole = "ai"
	SenderSystem  SenderRole = "system"
)

type Message struct {
	ID         int64      `json:"id"`
	ChatID     int64      `json:"chat_id"`
	SenderRole SenderRole `json:"sender_role"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ChatDetail struct {
	ChatSession
	Payment *Payment `json:"payment,omitempty"`
}
