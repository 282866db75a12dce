package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fin-api/internal/config"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		StorageDriver: config.StorageDriverMemory,
		ServerPort:    "0",
		BcryptCost:    4,
	}
	srv, err := NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func createUser(t *testing.T, srv *Server, email string) string {
	t.Helper()
	code, env := do(t, srv, http.MethodPost, "/users", map[string]string{
		"name":     "User",
		"email":    email,
		"password": "secret",
	})
	require.Equal(t, http.StatusCreated, code)
	var user struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &user))
	return user.ID
}

func balanceOf(t *testing.T, srv *Server, userID string) (decimal.Decimal, int) {
	t.Helper()
	code, env := do(t, srv, http.MethodGet, "/users/"+userID+"/balance", nil)
	require.Equal(t, http.StatusOK, code)
	var body struct {
		Balance   string            `json:"balance"`
		Statement []json.RawMessage `json:"statement"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	return decimal.RequireFromString(body.Balance), len(body.Statement)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, config.StorageDriverMemory, body["storage"])
}

func TestUnknownStorageDriver(t *testing.T) {
	_, err := NewServer(&config.Config{StorageDriver: "sqlite"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestCreateUserAndProfile(t *testing.T) {
	srv := newTestServer(t)
	id := createUser(t, srv, "ana@example.com")

	code, env := do(t, srv, http.MethodGet, "/users/"+id+"/profile", nil)
	require.Equal(t, http.StatusOK, code)
	var profile map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "ana@example.com", profile["email"])
	assert.NotContains(t, profile, "password")
	assert.NotContains(t, profile, "password_hash")

	code, env = do(t, srv, http.MethodPost, "/users", map[string]string{
		"name": "Other", "email": "ana@example.com", "password": "x",
	})
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "duplicate_account", env.Error.Code)
}

func TestDepositWithdrawAndBalance(t *testing.T) {
	srv := newTestServer(t)
	id := createUser(t, srv, "a@example.com")

	code, _ := do(t, srv, http.MethodPost, "/users/"+id+"/statements/deposit", map[string]string{
		"amount": "100.00", "description": "salary",
	})
	require.Equal(t, http.StatusCreated, code)

	code, env := do(t, srv, http.MethodPost, "/users/"+id+"/statements/withdraw", map[string]string{
		"amount": "30.00", "description": "rent",
	})
	require.Equal(t, http.StatusCreated, code)
	var withdrawal struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Amount string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &withdrawal))
	assert.Equal(t, "withdraw", withdrawal.Type)
	assert.True(t, decimal.RequireFromString("30").Equal(decimal.RequireFromString(withdrawal.Amount)))

	balance, entries := balanceOf(t, srv, id)
	assert.True(t, balance.Equal(decimal.RequireFromString("70")), balance.String())
	assert.Equal(t, 2, entries)

	code, env = do(t, srv, http.MethodPost, "/users/"+id+"/statements/withdraw", map[string]string{
		"amount": "100.00", "description": "too much",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "insufficient_funds", env.Error.Code)

	code, env = do(t, srv, http.MethodGet, "/users/"+id+"/statements/"+withdrawal.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, env.Error)
}

func TestTransfer(t *testing.T) {
	srv := newTestServer(t)
	sender := createUser(t, srv, "s@example.com")
	receiver := createUser(t, srv, "r@example.com")

	code, _ := do(t, srv, http.MethodPost, "/users/"+sender+"/statements/deposit", map[string]string{"amount": "50"})
	require.Equal(t, http.StatusCreated, code)

	code, env := do(t, srv, http.MethodPost, "/users/"+sender+"/statements/transfers/"+receiver, map[string]string{
		"amount": "20", "description": "dinner",
	})
	require.Equal(t, http.StatusCreated, code)
	var transfer struct {
		Sent struct {
			Type           string `json:"type"`
			CounterpartyID string `json:"counterparty_id"`
		} `json:"sent"`
		Received struct {
			Type           string `json:"type"`
			CounterpartyID string `json:"counterparty_id"`
		} `json:"received"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &transfer))
	assert.Equal(t, "transfer-send", transfer.Sent.Type)
	assert.Equal(t, receiver, transfer.Sent.CounterpartyID)
	assert.Equal(t, "transfer-receive", transfer.Received.Type)
	assert.Equal(t, sender, transfer.Received.CounterpartyID)

	senderBalance, _ := balanceOf(t, srv, sender)
	receiverBalance, _ := balanceOf(t, srv, receiver)
	assert.True(t, senderBalance.Equal(decimal.RequireFromString("30")))
	assert.True(t, receiverBalance.Equal(decimal.RequireFromString("20")))

	code, env = do(t, srv, http.MethodPost, "/users/"+sender+"/statements/transfers/"+sender, map[string]string{"amount": "1"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "self_transfer_not_allowed", env.Error.Code)
}

func TestRequestErrors(t *testing.T) {
	srv := newTestServer(t)
	id := createUser(t, srv, "e@example.com")
	missing := uuid.NewString()

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"malformed user id", http.MethodGet, "/users/not-a-uuid/balance", nil, http.StatusBadRequest, "invalid_account_id"},
		{"unknown user balance", http.MethodGet, "/users/" + missing + "/balance", nil, http.StatusNotFound, "account_not_found"},
		{"unknown user profile", http.MethodGet, "/users/" + missing + "/profile", nil, http.StatusNotFound, "account_not_found"},
		{"unknown statement", http.MethodGet, "/users/" + id + "/statements/" + missing, nil, http.StatusNotFound, "statement_not_found"},
		{"non numeric amount", http.MethodPost, "/users/" + id + "/statements/deposit", map[string]string{"amount": "ten"}, http.StatusBadRequest, "invalid_amount"},
		{"negative amount", http.MethodPost, "/users/" + id + "/statements/deposit", map[string]string{"amount": "-5"}, http.StatusBadRequest, "invalid_amount"},
		{"zero amount", http.MethodPost, "/users/" + id + "/statements/withdraw", map[string]string{"amount": "0"}, http.StatusBadRequest, "invalid_amount"},
		{"unknown receiver", http.MethodPost, "/users/" + id + "/statements/transfers/" + missing, map[string]string{"amount": "1"}, http.StatusNotFound, "account_not_found"},
		{"invalid email", http.MethodPost, "/users", map[string]string{"name": "x", "email": "nope", "password": "x"}, http.StatusBadRequest, "invalid_input"},
		{"password too long", http.MethodPost, "/users", map[string]string{"name": "x", "email": "long@gmail.com", "password": strings.Repeat("a", 73)}, http.StatusBadRequest, "invalid_input"},
		{"too many decimals", http.MethodPost, "/users/" + id + "/statements/deposit", map[string]string{"amount": "1.000000004"}, http.StatusBadRequest, "invalid_amount"},
		{"amount too large", http.MethodPost, "/users/" + id + "/statements/deposit", map[string]string{"amount": "1000000000000"}, http.StatusBadRequest, "invalid_amount"},
		{"description too long", http.MethodPost, "/users/" + id + "/statements/deposit", map[string]string{"amount": "1", "description": strings.Repeat("d", 256)}, http.StatusBadRequest, "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestStartAndStop(t *testing.T) {
	srv, port, err := StartServer(&config.Config{
		StorageDriver: config.StorageDriverMemory,
		ServerPort:    "0",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)
	assert.Equal(t, "http://localhost:"+port, srv.GetBaseURL())

	resp, err := http.Get(srv.GetBaseURL() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(t.Context()))
}
