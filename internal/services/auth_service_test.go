package services

import (
	"context"
	"testing"

	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTrainerCreatesProfile(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	service := NewAuthService(store)

	user, err := service.Register(ctx, " Coach@Example.com ", "password123", "trainer")
	require.NoError(t, err)
	assert.Equal(t, "coach@example.com", user.Email)
	assert.Equal(t, models.RoleTrainer, user.Role)
	assert.NotEqual(t, "password123", user.PasswordHash)

	profile, err := store.TrainerProfiles().GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, profile.SessionRateMinor)

	_, err = service.Register(ctx, "coach@example.com", "password123", "trainee")
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestRegisterValidation(t *testing.T) {
	service := NewAuthService(repository.NewMemoryStore())
	ctx := context.Background()

	_, err := service.Register(ctx, "not-an-email", "password123", "trainee")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = service.Register(ctx, "a@example.com", "short", "trainee")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = service.Register(ctx, "a@example.com", "password123", "admin")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestLoginAndMe(t *testing.T) {
	ctx := context.Background()
	service := NewAuthService(repository.NewMemoryStore())

	registered, err := service.Register(ctx, "trainee@example.com", "password123", "trainee")
	require.NoError(t, err)

	user, err := service.Login(ctx, "TRAINEE@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = service.Login(ctx, "trainee@example.com", "wrong-password")
	assert.Equal(t, KindUnauthorized, KindOf(err))

	_, err = service.Login(ctx, "nobody@example.com", "password123")
	assert.Equal(t, KindUnauthorized, KindOf(err))

	me, err := service.Me(ctx, Actor{ID: registered.ID, Role: models.RoleTrainee})
	require.NoError(t, err)
	assert.Equal(t, "trainee@example.com", me.Email)

	_, err = service.Me(ctx, Actor{ID: 999, Role: models.RoleTrainee})
	assert.Equal(t, KindNotFound, KindOf(err))
}
