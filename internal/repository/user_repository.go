package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"fin-api/internal/domain"
	"fin-api/internal/errors"
)

type userRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewUserRepository(db SQLExecutor, logger *slog.Logger) domain.UserRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, name, email, password, created_at, updated_at`

func (r *userRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, name, email, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) {
			switch {
			case pqErr.Code == uniqueViolation:
				r.logger.Warn("Duplicate user registration attempt", "email", user.Email, "constraint", pqErr.Constraint)
				return errors.ErrDuplicateAccount.WithDetailsf("email %q is already registered", user.Email)
			case pqErr.Code.Class() == dataException:
				r.logger.Warn("User value rejected by column type", "email", user.Email, "code", pqErr.Code)
				return errors.NewAppError(errors.InvalidInput, "user value out of range").WithDetails(pqErr.Message)
			}
		}
		r.logger.Error("Failed to create user", "user_id", user.ID, "error", err)
		return errors.NewStoreError("failed to create user", err)
	}

	r.logger.Info("User created successfully", "user_id", user.ID)
	return nil
}

func (r *userRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return r.scanUser(ctx, query, id)
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return r.scanUser(ctx, query, email)
}

func (r *userRepository) GetUserForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	return r.scanUser(ctx, query, id)
}

func (r *userRepository) scanUser(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var user domain.User

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			r.logger.Debug("User not found", "lookup", arg)
			return nil, errors.ErrAccountNotFound.WithDetailsf("no user matches %v", arg)
		}
		r.logger.Error("Failed to get user", "lookup", arg, "error", err)
		return nil, errors.NewStoreError("failed to get user", err)
	}

	return &user, nil
}
