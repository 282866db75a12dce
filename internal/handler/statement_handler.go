package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"fin-api/internal/domain"
	"fin-api/internal/errors"
	"fin-api/internal/service"
)

type StatementHandler struct {
	ledgerService *service.LedgerService
}

func NewStatementHandler(ledgerService *service.LedgerService) *StatementHandler {
	return &StatementHandler{
		ledgerService: ledgerService,
	}
}

type OperationRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type StatementResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	CounterpartyID *string   `json:"counterparty_id,omitempty"`
	Amount         string    `json:"amount"`
	Type           string    `json:"type"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type BalanceResponse struct {
	Balance   string              `json:"balance"`
	Statement []StatementResponse `json:"statement"`
}

type TransferResponse struct {
	Sent     StatementResponse `json:"sent"`
	Received StatementResponse `json:"received"`
}

func newStatementResponse(s *domain.Statement) StatementResponse {
	response := StatementResponse{
		ID:          s.ID.String(),
		UserID:      s.UserID.String(),
		Amount:      s.Amount.String(),
		Type:        string(s.Type),
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.CounterpartyID != nil {
		id := s.CounterpartyID.String()
		response.CounterpartyID = &id
	}
	return response
}

func decodeOperation(r *http.Request) (decimal.Decimal, string, *errors.AppError) {
	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return decimal.Zero, "", errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error())
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return decimal.Zero, "", errors.NewAppError(errors.InvalidAmount, "invalid amount format").WithDetails(err.Error())
	}

	return amount, req.Description, nil
}

func (h *StatementHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, appErr := pathUUID(r, "user_id")
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	amount, description, appErr := decodeOperation(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	statement, err := h.ledgerService.Deposit(r.Context(), userID, amount, description)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newStatementResponse(statement))
}

func (h *StatementHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, appErr := pathUUID(r, "user_id")
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	amount, description, appErr := decodeOperation(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	statement, err := h.ledgerService.Withdraw(r.Context(), userID, amount, description)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newStatementResponse(statement))
}

func (h *StatementHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	senderID, appErr := pathUUID(r, "user_id")
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	receiverID, appErr := pathUUID(r, "receiver_id")
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	amount, description, appErr := decodeOperation(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	transfer, err := h.ledgerService.Transfer(r.Context(), senderID, receiverID, amount, description)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, TransferResponse{
		Sent:     newStatementResponse(transfer.Sent),
		Received: newStatementResponse(transfer.Received),
	})
}

func (h *StatementHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, appErr := pathUUID(r, "user_id")
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	statement, err := h.ledgerService.GetStatement(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := BalanceResponse{
		Balance:   statement.Balance.String(),
		Statement: make([]StatementResponse, 0, len(statement.Statements)),
	}
	for _, s := range statement.Statements {
		response.Statement = append(response.Statement, newStatementResponse(s))
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *StatementHandler) GetStatementOperation(w http.ResponseWriter, r *http.Request) {
	userID, appErr := pathUUID(r, "user_id")
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	statementID, appErr := pathUUID(r, "statement_id")
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	statement, err := h.ledgerService.GetStatementOperation(r.Context(), userID, statementID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newStatementResponse(statement))
}
