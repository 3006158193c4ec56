package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/kartikrastogi18/FitConnect/internal/models"
)

const chatColumns = `id, trainee_id, trainer_id, type, status, created_at, updated_at`

type ChatRepository struct {
	db DBTX
}

func NewChatRepository(db DBTX) *ChatRepository {
	return &ChatRepository{db: db}
}

func scanChat(row pgx.Row) (*models.ChatSession, error) {
	var chat models.ChatSession
	err := row.Scan(
		&chat.ID,
		&chat.TraineeID,
		&chat.TrainerID,
		&chat.Type,
		&chat.Status,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	return &chat, nil
}

func (r *ChatRepository) CreateOrGetLive(
	ctx context.Context,
	input CreateChatInput,
) (*models.ChatSession, bool, error) {
	// The partial unique indexes on chat_sessions make the insert a no-op when
	// a live chat already exists. A concurrent completion can free the slot
	// between the insert and the lookup, so the pair is attempted twice.
	for attempt := 0; attempt < 2; attempt++ {
		chat, err := scanChat(r.db.QueryRow(ctx, `
			INSERT INTO chat_sessions (trainee_id, trainer_id, type, status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
			RETURNING `+chatColumns,
			input.TraineeID, input.TrainerID, input.Type, input.Status,
		))
		if err == nil {
			return chat, true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}

		existing, err := r.getLive(ctx, input)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}
	return nil, false, ErrDuplicate
}

func (r *ChatRepository) getLive(ctx context.Context, input CreateChatInput) (*models.ChatSession, error) {
	if input.Type == models.ChatTypeAI {
		return scanChat(r.db.QueryRow(ctx, `
			SELECT `+chatColumns+`
			FROM chat_sessions
			WHERE trainee_id = $1 AND type = 'AI' AND status = 'ACTIVE'
		`, input.TraineeID))
	}
	return scanChat(r.db.QueryRow(ctx, `
		SELECT `+chatColumns+`
		FROM chat_sessions
		WHERE trainee_id = $1 AND trainer_id = $2 AND type = 'TRAINER'
		  AND status IN ('PENDING', 'ACTIVE')
	`, input.TraineeID, input.TrainerID))
}

func (r *ChatRepository) GetByID(ctx context.Context, chatID int64) (*models.ChatSession, error) {
	return scanChat(r.db.QueryRow(ctx, `
		SELECT `+chatColumns+`
		FROM chat_sessions
		WHERE id = $1
	`, chatID))
}

func (r *ChatRepository) GetByIDForUpdate(ctx context.Context, chatID int64) (*models.ChatSession, error) {
	return scanChat(r.db.QueryRow(ctx, `
		SELECT `+chatColumns+`
		FROM chat_sessions
		WHERE id = $1
		FOR UPDATE
	`, chatID))
}

func (r *ChatRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
) ([]models.ChatSession, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+chatColumns+`
		FROM chat_sessions
		WHERE trainee_id = $1 OR trainer_id = $1
		ORDER BY updated_at DESC, id DESC
	`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]models.ChatSession, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *ChatRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	chatID int64,
	currentStatus models.ChatStatus,
	nextStatus models.ChatStatus,
) (*models.ChatSession, error) {
	return scanChat(r.db.QueryRow(ctx, `
		UPDATE chat_sessions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+chatColumns,
		chatID, currentStatus, nextStatus,
	))
}

func (r *ChatRepository) Touch(ctx context.Context, chatID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_sessions
		SET updated_at = NOW()
		WHERE id = $1
	`, chatID)
	return err
}
