package service

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fin-api/internal/domain"
	"fin-api/internal/errors"
)

type UserService struct {
	store      domain.Store
	logger     *slog.Logger
	bcryptCost int
}

func NewUserService(store domain.Store, bcryptCost int, logger *slog.Logger) *UserService {
	return &UserService{
		store:      store,
		logger:     logger,
		bcryptCost: bcryptCost,
	}
}

const (
	// bcrypt refuses longer passwords.
	maxPasswordBytes = 72
	maxFieldLength   = 255
)

type CreateUserRequest struct {
	Name     string
	Email    string
	Password string
}

func (r CreateUserRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return errors.NewAppError(errors.InvalidInput, "name is required")
	case r.Email == "":
		return errors.NewAppError(errors.InvalidInput, "email is required")
	case r.Password == "":
		return errors.NewAppError(errors.InvalidInput, "password is required")
	case len(r.Password) > maxPasswordBytes:
		return errors.NewAppError(errors.InvalidInput, "password is too long").
			WithDetailsf("at most %d bytes allowed", maxPasswordBytes)
	case utf8.RuneCountInString(r.Name) > maxFieldLength:
		return errors.NewAppError(errors.InvalidInput, "name is too long").
			WithDetailsf("at most %d characters allowed", maxFieldLength)
	case utf8.RuneCountInString(r.Email) > maxFieldLength:
		return errors.NewAppError(errors.InvalidInput, "email is too long").
			WithDetailsf("at most %d characters allowed", maxFieldLength)
	}

	addr, err := mail.ParseAddress(r.Email)
	if err != nil || addr.Address != r.Email {
		return errors.NewAppError(errors.InvalidInput, "email is malformed").WithDetails(r.Email)
	}
	return nil
}

// CreateUser registers a user. Taken emails are rejected before hashing; the
// store's unique constraint still settles concurrent registrations.
func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	s.logger.Info("Creating user", "email", req.Email)

	if err := req.validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.Users().GetUserByEmail(ctx, req.Email)
	switch {
	case err == nil:
		s.logger.Warn("Email already registered", "email", req.Email, "user_id", existing.ID)
		return nil, errors.ErrDuplicateAccount.WithDetailsf("email %q is already registered", req.Email)
	case !errors.Is(err, errors.ErrAccountNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		s.logger.Error("Failed to hash password", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to hash password").WithDetails(err.Error())
	}

	user := &domain.User{
		ID:           uuid.New(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
	}

	if err := s.store.Users().CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User created successfully", "user_id", user.ID)
	return user, nil
}

// GetProfile returns the user's profile.
func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	s.logger.Info("Getting profile", "user_id", userID)

	return s.store.Users().GetUserByID(ctx, userID)
}
