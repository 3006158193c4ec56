package models

import "time"

type Role string

const (
	RoleTrainee Role = "trainee"
	RoleTrainer Role = "trainer"
	RoleAdmin   Role = "admin"
	// RoleSystem is used by scheduled jobs acting on the platform's behalf.
	RoleSystem Role = "system"
)

func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleTrainee, RoleTrainer, RoleAdmin:
		return Role(value), true
	}
	return "", false
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type TrainerProfile struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	SessionRateMinor *int64    `json:"session_rate_minor"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
