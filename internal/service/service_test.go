package service

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"fin-api/internal/domain"
	"fin-api/internal/errors"
	"fin-api/internal/repository/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServices(store domain.Store) (*UserService, *LedgerService) {
	logger := discardLogger()
	return NewUserService(store, bcrypt.MinCost, logger), NewLedgerService(store, logger)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func registerUser(t *testing.T, users *UserService, email string) *domain.User {
	t.Helper()
	user, err := users.CreateUser(context.Background(), CreateUserRequest{
		Name:     "Mario Luiz",
		Email:    email,
		Password: "123456",
	})
	require.NoError(t, err)
	return user
}

func requireBalance(t *testing.T, ledger *LedgerService, userID uuid.UUID, want string) {
	t.Helper()
	got, err := ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, dec(want).Equal(got), "balance: want %s, got %s", want, got)
}

// failingStore fails the nth CreateStatement call made inside a transaction
// with a store error.
type failingStore struct {
	domain.Store
	failOn int
}

func (f *failingStore) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	return f.Store.WithTransaction(ctx, func(tx domain.Store) error {
		return fn(&failingTx{Store: tx, failOn: f.failOn})
	})
}

type failingTx struct {
	domain.Store
	failOn int
	calls  int
}

func (f *failingTx) Statements() domain.StatementRepository {
	return &failingStatements{StatementRepository: f.Store.Statements(), tx: f}
}

type failingStatements struct {
	domain.StatementRepository
	tx *failingTx
}

var errConnectionReset = stderrors.New("connection reset by peer")

func (f *failingStatements) CreateStatement(ctx context.Context, statement *domain.Statement) error {
	f.tx.calls++
	if f.tx.calls == f.tx.failOn {
		return errors.NewStoreError("failed to create statement", errConnectionReset)
	}
	return f.StatementRepository.CreateStatement(ctx, statement)
}

// countingStore counts user inserts that reach the store.
type countingStore struct {
	domain.Store
	inserts int
}

func (c *countingStore) Users() domain.UserRepository {
	return &countingUsers{UserRepository: c.Store.Users(), store: c}
}

type countingUsers struct {
	domain.UserRepository
	store *countingStore
}

func (c *countingUsers) CreateUser(ctx context.Context, user *domain.User) error {
	c.store.inserts++
	return c.UserRepository.CreateUser(ctx, user)
}

// interleavingStore commits a deposit for depositTo after a transaction has
// started, standing in for a deposit that lands while the transaction waits
// for its row locks.
type interleavingStore struct {
	domain.Store
	depositTo uuid.UUID
	deposit   *domain.Statement
}

func (s *interleavingStore) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	return s.Store.WithTransaction(ctx, func(tx domain.Store) error {
		s.deposit = &domain.Statement{
			UserID:    s.depositTo,
			Amount:    decimal.NewFromInt(1),
			Type:      domain.OperationDeposit,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Statements().CreateStatement(ctx, s.deposit); err != nil {
			return err
		}
		return fn(tx)
	})
}

func newMemoryStore() *memory.Store {
	return memory.NewStore(discardLogger())
}
