// Package memory is an in-process domain.Store. A single mutex serializes
// every transaction, which gives the same no-overdraft guarantee as the
// PostgreSQL row locks at the cost of cross-account parallelism.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fin-api/internal/domain"
	"fin-api/internal/errors"
)

type state struct {
	users      map[uuid.UUID]*domain.User
	emails     map[string]uuid.UUID
	statements []*domain.Statement
	byID       map[uuid.UUID]*domain.Statement
}

// undoLog records inserts made inside a transaction so they can be reverted.
type undoLog struct {
	users      []*domain.User
	statements int
}

type Store struct {
	mu     *sync.Mutex
	locker sync.Locker
	state  *state
	undo   *undoLog
	logger *slog.Logger
}

var _ domain.Store = (*Store)(nil)

func NewStore(logger *slog.Logger) *Store {
	mu := &sync.Mutex{}
	return &Store{
		mu:     mu,
		locker: mu,
		state: &state{
			users:  make(map[uuid.UUID]*domain.User),
			emails: make(map[string]uuid.UUID),
			byID:   make(map[uuid.UUID]*domain.Statement),
		},
		logger: logger,
	}
}

func (s *Store) Users() domain.UserRepository {
	return &userRepository{store: s}
}

func (s *Store) Statements() domain.StatementRepository {
	return &statementRepository{store: s}
}

// WithTransaction holds the store mutex for the duration of fn.
func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	if s.undo != nil {
		return errors.ErrCannotBeginTransaction
	}
	if err := ctx.Err(); err != nil {
		return errors.NewStoreError("failed to begin transaction", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	undo := &undoLog{statements: len(s.state.statements)}
	txStore := &Store{
		mu:     s.mu,
		locker: noopLocker{},
		state:  s.state,
		undo:   undo,
		logger: s.logger,
	}

	committed := false
	defer func() {
		if !committed {
			s.rollback(undo)
		}
	}()

	if err := fn(txStore); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) rollback(undo *undoLog) {
	st := s.state
	for _, stmt := range st.statements[undo.statements:] {
		delete(st.byID, stmt.ID)
	}
	st.statements = st.statements[:undo.statements]

	for _, user := range undo.users {
		delete(st.users, user.ID)
		delete(st.emails, user.Email)
	}

	if s.logger != nil {
		s.logger.Debug("Memory transaction rolled back", "users", len(undo.users))
	}
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

type userRepository struct {
	store *Store
}

func (r *userRepository) CreateUser(ctx context.Context, user *domain.User) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	st := r.store.state
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, exists := st.emails[user.Email]; exists {
		return errors.ErrDuplicateAccount.WithDetailsf("email %q is already registered", user.Email)
	}
	if _, exists := st.users[user.ID]; exists {
		return errors.ErrDuplicateAccount.WithDetailsf("user %s already exists", user.ID)
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt

	stored := *user
	st.users[user.ID] = &stored
	st.emails[user.Email] = user.ID
	if r.store.undo != nil {
		r.store.undo.users = append(r.store.undo.users, &stored)
	}
	return nil
}

func (r *userRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	user, ok := r.store.state.users[id]
	if !ok {
		return nil, errors.ErrAccountNotFound.WithDetailsf("no user matches %s", id)
	}
	cp := *user
	return &cp, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	id, ok := r.store.state.emails[email]
	if !ok {
		return nil, errors.ErrAccountNotFound.WithDetailsf("no user matches %s", email)
	}
	cp := *r.store.state.users[id]
	return &cp, nil
}

// GetUserForUpdate is GetUserByID; the transaction already holds the store mutex.
func (r *userRepository) GetUserForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.GetUserByID(ctx, id)
}

type statementRepository struct {
	store *Store
}

func (r *statementRepository) CreateStatement(ctx context.Context, statement *domain.Statement) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	st := r.store.state
	if _, ok := st.users[statement.UserID]; !ok {
		return errors.ErrAccountNotFound.WithDetailsf("statement references unknown user %s", statement.UserID)
	}
	if statement.CounterpartyID != nil {
		if _, ok := st.users[*statement.CounterpartyID]; !ok {
			return errors.ErrAccountNotFound.WithDetailsf("statement references unknown user %s", *statement.CounterpartyID)
		}
	}

	if statement.ID == uuid.Nil {
		statement.ID = uuid.New()
	}
	if statement.CreatedAt.IsZero() {
		statement.CreatedAt = time.Now().UTC()
	}
	statement.UpdatedAt = statement.CreatedAt

	stored := cloneStatement(statement)
	st.statements = append(st.statements, stored)
	st.byID[stored.ID] = stored
	return nil
}

func (r *statementRepository) GetStatementByID(ctx context.Context, id uuid.UUID) (*domain.Statement, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	statement, ok := r.store.state.byID[id]
	if !ok {
		return nil, errors.ErrStatementNotFound.WithDetailsf("statement %s", id)
	}
	return cloneStatement(statement), nil
}

func (r *statementRepository) ListStatementsByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Statement, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	out := make([]*domain.Statement, 0)
	for _, statement := range r.store.state.statements {
		if statement.UserID == userID {
			out = append(out, cloneStatement(statement))
		}
	}
	// Insertion order breaks ties, matching the seq column in PostgreSQL.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneStatement(statement *domain.Statement) *domain.Statement {
	cp := *statement
	if statement.CounterpartyID != nil {
		id := *statement.CounterpartyID
		cp.CounterpartyID = &id
	}
	return &cp
}
