package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OperationType string

const (
	OperationDeposit         OperationType = "deposit"
	OperationWithdraw        OperationType = "withdraw"
	OperationTransferSend    OperationType = "transfer-send"
	OperationTransferReceive OperationType = "transfer-receive"
)

func (t OperationType) IsValid() bool {
	switch t {
	case OperationDeposit, OperationWithdraw, OperationTransferSend, OperationTransferReceive:
		return true
	}
	return false
}

// IsCredit reports whether statements of this type add to the balance.
func (t OperationType) IsCredit() bool {
	return t == OperationDeposit || t == OperationTransferReceive
}

func (t OperationType) IsDebit() bool {
	return t == OperationWithdraw || t == OperationTransferSend
}

// Statement is one immutable ledger entry.
type Statement struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	CounterpartyID *uuid.UUID      `json:"counterparty_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Type           OperationType   `json:"type"`
	Description    string          `json:"description"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Transfer holds both legs of a transfer.
type Transfer struct {
	Sent     *Statement `json:"sent"`
	Received *Statement `json:"received"`
}

// AccountStatement is a user's full ledger with its derived balance.
type AccountStatement struct {
	User       *User           `json:"user"`
	Balance    decimal.Decimal `json:"balance"`
	Statements []*Statement    `json:"statements"`
}

// Balance folds a statement history into the net amount.
func Balance(statements []*Statement) decimal.Decimal {
	balance := decimal.Zero
	for _, s := range statements {
		switch {
		case s.Type.IsCredit():
			balance = balance.Add(s.Amount)
		case s.Type.IsDebit():
			balance = balance.Sub(s.Amount)
		}
	}
	return balance
}

type StatementRepository interface {
	// CreateStatement assigns ID and timestamps when they are zero.
	CreateStatement(ctx context.Context, statement *Statement) error
	GetStatementByID(ctx context.Context, id uuid.UUID) (*Statement, error)
	// ListStatementsByUser returns statements ordered by creation time.
	ListStatementsByUser(ctx context.Context, userID uuid.UUID) ([]*Statement, error)
}
