package errors

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	AccountNotFound        ErrorCode = "account_not_found"
	StatementNotFound      ErrorCode = "statement_not_found"
	DuplicateAccount       ErrorCode = "duplicate_account"
	InsufficientFunds      ErrorCode = "insufficient_funds"
	SelfTransferNotAllowed ErrorCode = "self_transfer_not_allowed"
	InvalidAmount          ErrorCode = "invalid_amount"
	InvalidInput           ErrorCode = "invalid_input"
	InvalidAccountID       ErrorCode = "invalid_account_id"
	StoreUnavailable       ErrorCode = "store_unavailable"
	InternalError          ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	// Err is the underlying driver error for store failures.
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on the error code so detailed copies of a predefined error
// still satisfy errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewStoreError wraps a storage failure. Store errors are transient: nothing
// was written, so the caller may retry.
func NewStoreError(op string, err error) *AppError {
	return &AppError{
		Code:    StoreUnavailable,
		Message: op,
		Details: err.Error(),
		Err:     err,
	}
}

// WithDetails returns a copy of e carrying details.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case AccountNotFound, StatementNotFound:
		return http.StatusNotFound
	case DuplicateAccount:
		return http.StatusConflict
	case InsufficientFunds:
		return http.StatusUnprocessableEntity
	case SelfTransferNotAllowed, InvalidAmount, InvalidInput, InvalidAccountID:
		return http.StatusBadRequest
	case StoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the failure was infrastructural.
func (e *AppError) Retryable() bool {
	return e.Code == StoreUnavailable
}

// IsRetryable reports whether err is, or wraps, a retryable AppError.
func IsRetryable(err error) bool {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr.Retryable()
	}
	return false
}

// Predefined errors for common cases
var (
	ErrAccountNotFound        = NewAppError(AccountNotFound, "account not found")
	ErrStatementNotFound      = NewAppError(StatementNotFound, "statement not found")
	ErrDuplicateAccount       = NewAppError(DuplicateAccount, "account already exists")
	ErrInsufficientFunds      = NewAppError(InsufficientFunds, "insufficient funds")
	ErrSelfTransferNotAllowed = NewAppError(SelfTransferNotAllowed, "cannot transfer to the same account")
	ErrInvalidAmount          = NewAppError(InvalidAmount, "invalid amount")
	ErrInvalidAccountID       = NewAppError(InvalidAccountID, "invalid account id")
	ErrCannotBeginTransaction = NewAppError(InternalError, "cannot begin a transaction inside a transaction")
)
