package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"fin-api/internal/domain"
	"fin-api/internal/errors"
)

type statementRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewStatementRepository(db SQLExecutor, logger *slog.Logger) domain.StatementRepository {
	return &statementRepository{
		db:     db,
		logger: logger,
	}
}

const statementColumns = `id, user_id, counterparty_id, amount, type, description, created_at, updated_at`

func (r *statementRepository) CreateStatement(ctx context.Context, statement *domain.Statement) error {
	query := `
		INSERT INTO statements
		(id, user_id, counterparty_id, amount, type, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if statement.ID == uuid.Nil {
		statement.ID = uuid.New()
	}
	if statement.CreatedAt.IsZero() {
		statement.CreatedAt = time.Now().UTC()
	}
	statement.UpdatedAt = statement.CreatedAt

	var counterparty uuid.NullUUID
	if statement.CounterpartyID != nil {
		counterparty = uuid.NullUUID{UUID: *statement.CounterpartyID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		statement.ID,
		statement.UserID,
		counterparty,
		statement.Amount.String(),
		string(statement.Type),
		statement.Description,
		statement.CreatedAt,
		statement.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) {
			switch pqErr.Code {
			case foreignKeyViolation:
				r.logger.Warn("Statement references unknown user", "user_id", statement.UserID, "constraint", pqErr.Constraint)
				return errors.ErrAccountNotFound.WithDetailsf("statement references unknown user (%s)", pqErr.Constraint)
			case checkViolation:
				r.logger.Warn("Statement rejected by check constraint", "user_id", statement.UserID, "constraint", pqErr.Constraint)
				return errors.NewAppError(errors.InvalidInput, "statement violates ledger constraints").WithDetails(pqErr.Constraint)
			}
			if pqErr.Code.Class() == dataException {
				r.logger.Warn("Statement value rejected by column type", "user_id", statement.UserID, "code", pqErr.Code)
				return errors.NewAppError(errors.InvalidInput, "statement value out of range").WithDetails(pqErr.Message)
			}
		}
		r.logger.Error("Failed to create statement",
			"user_id", statement.UserID,
			"type", statement.Type,
			"amount", statement.Amount,
			"error", err)
		return errors.NewStoreError("failed to create statement", err)
	}

	r.logger.Info("Statement created successfully",
		"statement_id", statement.ID,
		"user_id", statement.UserID,
		"type", statement.Type,
		"amount", statement.Amount)
	return nil
}

func (r *statementRepository) GetStatementByID(ctx context.Context, id uuid.UUID) (*domain.Statement, error) {
	query := `SELECT ` + statementColumns + ` FROM statements WHERE id = $1`

	statement, err := scanStatement(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrStatementNotFound.WithDetailsf("statement %s", id)
		}
		r.logger.Error("Failed to get statement", "statement_id", id, "error", err)
		return nil, errors.NewStoreError("failed to get statement", err)
	}

	return statement, nil
}

func (r *statementRepository) ListStatementsByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Statement, error) {
	query := `
		SELECT ` + statementColumns + `
		FROM statements
		WHERE user_id = $1
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list statements", "user_id", userID, "error", err)
		return nil, errors.NewStoreError("failed to list statements", err)
	}
	defer rows.Close()

	statements := make([]*domain.Statement, 0)
	for rows.Next() {
		statement, err := scanStatement(rows)
		if err != nil {
			r.logger.Error("Failed to scan statement", "user_id", userID, "error", err)
			return nil, errors.NewStoreError("failed to scan statement", err)
		}
		statements = append(statements, statement)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("failed to iterate statements", err)
	}

	return statements, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStatement(row rowScanner) (*domain.Statement, error) {
	var statement domain.Statement
	var counterparty uuid.NullUUID
	var amountStr, typ string

	err := row.Scan(
		&statement.ID,
		&statement.UserID,
		&counterparty,
		&amountStr,
		&typ,
		&statement.Description,
		&statement.CreatedAt,
		&statement.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, err
	}
	statement.Amount = amount
	statement.Type = domain.OperationType(typ)

	if counterparty.Valid {
		id := counterparty.UUID
		statement.CounterpartyID = &id
	}

	return &statement, nil
}
