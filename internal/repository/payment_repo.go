package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kartikrastogi18/FitConnect/internal/models"
)

const paymentColumns = `id, chat_id, trainee_id, trainer_id, gateway_ref, amount, currency, status,
	held_at, released_at, refunded_at, created_at, updated_at`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var payment models.Payment
	err := row.Scan(
		&payment.ID,
		&payment.ChatID,
		&payment.TraineeID,
		&payment.TrainerID,
		&payment.GatewayRef,
		&payment.Amount,
		&payment.Currency,
		&payment.Status,
		&payment.HeldAt,
		&payment.ReleasedAt,
		&payment.RefundedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	return &payment, nil
}

func collectPayments(rows pgx.Rows) ([]models.Payment, error) {
	defer rows.Close()
	payments := make([]models.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PaymentRepository) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		INSERT INTO payments (chat_id, trainee_id, trainer_id, gateway_ref, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'CREATED')
		RETURNING `+paymentColumns,
		input.ChatID, input.TraineeID, input.TrainerID, input.GatewayRef, input.Amount, input.Currency,
	))
}

func (r *PaymentRepository) GetByID(ctx context.Context, paymentID int64) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, paymentID))
}

func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, paymentID int64) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
		FOR UPDATE
	`, paymentID))
}

func (r *PaymentRepository) GetByChatID(ctx context.Context, chatID int64) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE chat_id = $1
	`, chatID))
}

func (r *PaymentRepository) GetByChatIDForUpdate(ctx context.Context, chatID int64) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE chat_id = $1
		FOR UPDATE
	`, chatID))
}

func (r *PaymentRepository) GetByGatewayRef(ctx context.Context, gatewayRef string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE gateway_ref = $1
	`, gatewayRef))
}

func (r *PaymentRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	paymentID int64,
	currentStatus models.PaymentStatus,
	nextStatus models.PaymentStatus,
	at time.Time,
) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = $3,
		    held_at = CASE WHEN $3 = 'HELD' THEN COALESCE(held_at, $4) ELSE held_at END,
		    released_at = CASE WHEN $3 = 'RELEASED' THEN COALESCE(released_at, $4) ELSE released_at END,
		    refunded_at = CASE WHEN $3 = 'REFUNDED' THEN COALESCE(refunded_at, $4) ELSE refunded_at END,
		    updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+paymentColumns,
		paymentID, currentStatus, nextStatus, at,
	))
}

func (r *PaymentRepository) List(
	ctx context.Context,
	filter PaymentListFilter,
) ([]models.Payment, int, error) {
	args := []any{}
	whereParts := []string{"TRUE"}

	if filter.ParticipantID > 0 {
		args = append(args, filter.ParticipantID)
		whereParts = append(whereParts, fmt.Sprintf("(trainee_id = $%d OR trainer_id = $%d)", len(args), len(args)))
	}
	if filter.TraineeID > 0 {
		args = append(args, filter.TraineeID)
		whereParts = append(whereParts, fmt.Sprintf("trainee_id = $%d", len(args)))
	}
	if filter.TrainerID > 0 {
		args = append(args, filter.TrainerID)
		whereParts = append(whereParts, fmt.Sprintf("trainer_id = $%d", len(args)))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}
	where := strings.Join(whereParts, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM payments
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, paymentColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *PaymentRepository) ListHeldBefore(
	ctx context.Context,
	before time.Time,
	limit int,
) ([]models.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = 'HELD' AND held_at < $1
		ORDER BY held_at ASC, id ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}
