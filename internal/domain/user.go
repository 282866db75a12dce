package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is a registered account holder. Statements reference it by ID.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserForUpdate locks the user until the surrounding transaction ends.
	GetUserForUpdate(ctx context.Context, id uuid.UUID) (*User, error)
}
