package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/kartikrastogi18/FitConnect/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(
	ctx context.Context,
	chatID int64,
	senderRole models.SenderRole,
	content string,
) (*models.Message, error) {
	query := `
		INSERT INTO messages (chat_id, sender_role, content)
		VALUES ($1, $2, $3)
		RETURNING id, chat_id, sender_role, content, created_at
	`

	var message models.Message
	err := r.db.QueryRow(ctx, query, chatID, senderRole, content).Scan(
		&message.ID,
		&message.ChatID,
		&message.SenderRole,
		&message.Content,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, translateErr(err)
	}

	return &message, nil
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := rows.Scan(
			&message.ID,
			&message.ChatID,
			&message.SenderRole,
			&message.Content,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MessageRepository) ListByChat(
	ctx context.Context,
	chatID int64,
	limit int,
	offset int,
) ([]models.Message, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE chat_id = $1
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, chatID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, chat_id, sender_role, content, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, chatID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (r *MessageRepository) ListRecent(ctx context.Context, chatID int64, n int) ([]models.Message, error) {
	query := `
		SELECT id, chat_id, sender_role, content, created_at
		FROM (
			SELECT id, chat_id, sender_role, content, created_at
			FROM messages
			WHERE chat_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, chatID, n)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}
