package service

import (
	"bytes"
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fin-api/internal/domain"
	"fin-api/internal/errors"
)

// LedgerService mints statements and derives balances. It keeps no state
// between calls; every decision is taken against the store's history.
type LedgerService struct {
	store  domain.Store
	logger *slog.Logger
}

func NewLedgerService(store domain.Store, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:  store,
		logger: logger,
	}
}

// Deposit records a deposit. Deposits never fail on funds, so they are not
// serialized against other operations on the account.
func (s *LedgerService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*domain.Statement, error) {
	s.logger.Info("Processing deposit", "user_id", userID, "amount", amount)

	if err := validateAmount(domain.OperationDeposit, userID, amount); err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}

	if _, err := s.store.Users().GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	statement := &domain.Statement{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.OperationDeposit,
		Description: description,
	}
	if err := s.store.Statements().CreateStatement(ctx, statement); err != nil {
		s.logger.Error("Deposit failed", "user_id", userID, "amount", amount, "error", err)
		return nil, err
	}

	s.logger.Info("Deposit completed", "statement_id", statement.ID, "user_id", userID)
	return statement, nil
}

// Withdraw records a withdrawal if the current balance covers it. The user
// row is locked while the balance is checked and the statement inserted.
func (s *LedgerService) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*domain.Statement, error) {
	s.logger.Info("Processing withdraw", "user_id", userID, "amount", amount)

	if err := validateAmount(domain.OperationWithdraw, userID, amount); err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}

	statement := &domain.Statement{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.OperationWithdraw,
		Description: description,
	}

	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		if _, err := tx.Users().GetUserForUpdate(ctx, userID); err != nil {
			return err
		}

		if err := ensureFunds(ctx, tx, domain.OperationWithdraw, userID, amount); err != nil {
			return err
		}

		return tx.Statements().CreateStatement(ctx, statement)
	})
	if err != nil {
		s.logger.Warn("Withdraw rejected", "user_id", userID, "amount", amount, "error", err)
		return nil, err
	}

	s.logger.Info("Withdraw completed", "statement_id", statement.ID, "user_id", userID)
	return statement, nil
}

// Transfer moves amount from sender to receiver as two statements that are
// committed together or not at all.
func (s *LedgerService) Transfer(ctx context.Context, senderID, receiverID uuid.UUID, amount decimal.Decimal, description string) (*domain.Transfer, error) {
	s.logger.Info("Processing transfer",
		"sender_id", senderID,
		"receiver_id", receiverID,
		"amount", amount)

	if senderID == receiverID {
		return nil, errors.ErrSelfTransferNotAllowed.WithDetailsf("transfer of %s on account %s", amount, senderID)
	}
	if err := validateAmount(domain.OperationTransferSend, senderID, amount); err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}

	sent := &domain.Statement{
		UserID:         senderID,
		CounterpartyID: &receiverID,
		Amount:         amount,
		Type:           domain.OperationTransferSend,
		Description:    description,
	}
	received := &domain.Statement{
		UserID:         receiverID,
		CounterpartyID: &senderID,
		Amount:         amount,
		Type:           domain.OperationTransferReceive,
		Description:    description,
	}

	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		// Lock in a fixed order so opposite transfers cannot deadlock.
		for _, id := range lockOrder(senderID, receiverID) {
			if _, err := tx.Users().GetUserForUpdate(ctx, id); err != nil {
				return err
			}
		}

		if err := ensureFunds(ctx, tx, domain.OperationTransferSend, senderID, amount); err != nil {
			return err
		}

		// Stamped under the locks so both legs sort after every statement
		// the funds check saw.
		now := time.Now().UTC()
		sent.CreatedAt = now
		received.CreatedAt = now

		if err := tx.Statements().CreateStatement(ctx, sent); err != nil {
			return err
		}
		return tx.Statements().CreateStatement(ctx, received)
	})
	if err != nil {
		s.logger.Warn("Transfer rejected",
			"sender_id", senderID,
			"receiver_id", receiverID,
			"amount", amount,
			"error", err)
		return nil, err
	}

	s.logger.Info("Transfer completed",
		"sent_statement_id", sent.ID,
		"received_statement_id", received.ID)
	return &domain.Transfer{Sent: sent, Received: received}, nil
}

// GetBalance recomputes the balance from the full statement history.
func (s *LedgerService) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if _, err := s.store.Users().GetUserByID(ctx, userID); err != nil {
		return decimal.Zero, err
	}

	statements, err := s.store.Statements().ListStatementsByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	return domain.Balance(statements), nil
}

// GetStatement returns the user with the balance and every statement in
// creation order.
func (s *LedgerService) GetStatement(ctx context.Context, userID uuid.UUID) (*domain.AccountStatement, error) {
	user, err := s.store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	statements, err := s.store.Statements().ListStatementsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &domain.AccountStatement{
		User:       user,
		Balance:    domain.Balance(statements),
		Statements: statements,
	}, nil
}

// GetStatementOperation returns one statement owned by userID. A statement
// owned by anyone else is reported as not found.
func (s *LedgerService) GetStatementOperation(ctx context.Context, userID, statementID uuid.UUID) (*domain.Statement, error) {
	if _, err := s.store.Users().GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	statement, err := s.store.Statements().GetStatementByID(ctx, statementID)
	if err != nil {
		return nil, err
	}

	if statement.UserID != userID {
		s.logger.Warn("Statement requested by non-owner", "statement_id", statementID, "user_id", userID)
		return nil, errors.ErrStatementNotFound.WithDetailsf("statement %s", statementID)
	}

	return statement, nil
}

// Limits of the statements table: NUMERIC(20, 8) and VARCHAR(255).
const (
	amountScale          = 8
	maxDescriptionLength = 255
)

var maxAmount = decimal.New(1, 12)

func validateAmount(op domain.OperationType, userID uuid.UUID, amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return errors.ErrInvalidAmount.WithDetailsf("%s of %s on account %s", op, amount, userID)
	case !amount.Equal(amount.Round(amountScale)):
		return errors.ErrInvalidAmount.WithDetailsf("%s of %s on account %s has more than %d decimal places", op, amount, userID, amountScale)
	case amount.GreaterThanOrEqual(maxAmount):
		return errors.ErrInvalidAmount.WithDetailsf("%s of %s on account %s must be less than %s", op, amount, userID, maxAmount)
	}
	return nil
}

func validateDescription(description string) error {
	if n := utf8.RuneCountInString(description); n > maxDescriptionLength {
		return errors.NewAppError(errors.InvalidInput, "description is too long").
			WithDetailsf("%d characters, at most %d allowed", n, maxDescriptionLength)
	}
	return nil
}

func ensureFunds(ctx context.Context, tx domain.Store, op domain.OperationType, userID uuid.UUID, amount decimal.Decimal) error {
	statements, err := tx.Statements().ListStatementsByUser(ctx, userID)
	if err != nil {
		return err
	}

	balance := domain.Balance(statements)
	if balance.LessThan(amount) {
		return errors.ErrInsufficientFunds.WithDetailsf("%s of %s on account %s exceeds balance %s", op, amount, userID, balance)
	}
	return nil
}

func lockOrder(a, b uuid.UUID) []uuid.UUID {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return []uuid.UUID{a, b}
	}
	return []uuid.UUID{b, a}
}
