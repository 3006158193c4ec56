package repository

import (
	"context"

	"github.com/kartikrastogi18/FitConnect/internal/models"
)

type TrainerProfileRepository struct {
	db DBTX
}

func NewTrainerProfileRepository(db DBTX) *TrainerProfileRepository {
	return &TrainerProfileRepository{db: db}
}

func (r *TrainerProfileRepository) CreateEmpty(ctx context.Context, userID int64) error {
	query := `INSERT INTO trainer_profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	_, err := r.db.Exec(ctx, query, userID)
	return translateErr(err)
}

func (r *TrainerProfileRepository) GetByUserID(ctx context.Context, userID int64) (*models.TrainerProfile, error) {
	query := `
		SELECT id, user_id, session_rate_minor, created_at, updated_at
		FROM trainer_profiles
		WHERE user_id = $1
	`
	var profile models.TrainerProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.SessionRateMinor,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	return &profile, nil
}

func (r *TrainerProfileRepository) SetSessionRate(
	ctx context.Context,
	userID int64,
	rateMinor int64,
) (*models.TrainerProfile, error) {
	query := `
		INSERT INTO trainer_profiles (user_id, session_rate_minor)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET session_rate_minor = EXCLUDED.session_rate_minor, updated_at = NOW()
		RETURNING id, user_id, session_rate_minor, created_at, updated_at
	`
	var profile models.TrainerProfile
	err := r.db.QueryRow(ctx, query, userID, rateMinor).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.SessionRateMinor,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	return &profile, nil
}
