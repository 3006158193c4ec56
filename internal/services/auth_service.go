package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/repository"
	"github.com/kartikrastogi18/FitConnect/pkg/utils"
)

const minPasswordLength = 8

type AuthService struct {
	store repository.Store
}

func NewAuthService(store repository.Store) *AuthService {
	return &AuthService{store: store}
}

func normalizeEmail(email string) (string, error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", invalidInput("invalid email format")
	}
	return strings.ToLower(parsed.Address), nil
}

// Register creates a trainee or trainer account. Administrators are
// provisioned out of band.
func (s *AuthService) Register(ctx context.Context, email, password, role string) (*models.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, invalidInput("password must be at least 8 characters")
	}
	parsedRole, ok := models.ParseRole(role)
	if !ok || parsedRole == models.RoleAdmin {
		return nil, invalidInput("invalid role")
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Email: normalized, PasswordHash: hashed, Role: parsedRole}
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflict("email already exists")
			}
			return err
		}
		if parsedRole == models.RoleTrainer {
			return tx.TrainerProfiles().CreateEmpty(ctx, user.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	user, err := s.store.Users().GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindUnauthorized, "invalid email or password")
		}
		return nil, err
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		return nil, newError(KindUnauthorized, "invalid email or password")
	}
	return user, nil
}

func (s *AuthService) Me(ctx context.Context, actor Actor) (*models.User, error) {
	user, err := s.store.Users().GetByID(ctx, actor.ID)
	if err != nil {
		return nil, notFoundOr(err, "user not found")
	}
	return user, nil
}
