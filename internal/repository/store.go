package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kartikrastogi18/FitConnect/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

const uniqueViolation = "23505"

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so repositories can run
// inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type CreateChatInput struct {
	TraineeID int64
	TrainerID *int64
	Type      models.ChatType
	Status    models.ChatStatus
}

type CreatePaymentInput struct {
	ChatID     int64
	TraineeID  int64
	TrainerID  int64
	GatewayRef string
	Amount     int64
	Currency   string
}

type PaymentListFilter struct {
	// ParticipantID matches payments where the user is either party.
	ParticipantID int64
	TraineeID     int64
	TrainerID     int64
	Status        models.PaymentStatus
	Limit         int
	Offset        int
}

type ChatStore interface {
	// CreateOrGetLive inserts a chat unless a live chat already occupies the
	// same slot (active AI chat per trainee, live trainer chat per pair), in
	// which case the existing chat is returned with created=false.
	CreateOrGetLive(ctx context.Context, input CreateChatInput) (chat *models.ChatSession, created bool, err error)
	GetByID(ctx context.Context, id int64) (*models.ChatSession, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.ChatSession, error)
	ListForParticipant(ctx context.Context, userID int64) ([]models.ChatSession, error)
	UpdateStatusIfCurrent(ctx context.Context, id int64, current, next models.ChatStatus) (*models.ChatSession, error)
	Touch(ctx context.Context, id int64) error
}

type PaymentStore interface {
	Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error)
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Payment, error)
	GetByChatID(ctx context.Context, chatID int64) (*models.Payment, error)
	GetByChatIDForUpdate(ctx context.Context, chatID int64) (*models.Payment, error)
	GetByGatewayRef(ctx context.Context, gatewayRef string) (*models.Payment, error)
	// UpdateStatusIfCurrent moves the payment from current to next and stamps
	// the matching audit timestamp. ErrNotFound means the row was not in current.
	UpdateStatusIfCurrent(ctx context.Context, id int64, current, next models.PaymentStatus, at time.Time) (*models.Payment, error)
	List(ctx context.Context, filter PaymentListFilter) ([]models.Payment, int, error)
	ListHeldBefore(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
}

type MessageStore interface {
	Create(ctx context.Context, chatID int64, role models.SenderRole, content string) (*models.Message, error)
	ListByChat(ctx context.Context, chatID int64, limit, offset int) ([]models.Message, int, error)
	// ListRecent returns the newest n messages in ascending creation order.
	ListRecent(ctx context.Context, chatID int64, n int) ([]models.Message, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type TrainerProfileStore interface {
	CreateEmpty(ctx context.Context, userID int64) error
	GetByUserID(ctx context.Context, userID int64) (*models.TrainerProfile, error)
	SetSessionRate(ctx context.Context, userID int64, rateMinor int64) (*models.TrainerProfile, error)
}

// Store groups the repositories and runs units of work. Inside WithinTx every
// repository obtained from the passed Store writes through the same
// transaction; returning an error rolls all of them back.
type Store interface {
	Chats() ChatStore
	Payments() PaymentStore
	Messages() MessageStore
	Users() UserStore
	TrainerProfiles() TrainerProfileStore
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
