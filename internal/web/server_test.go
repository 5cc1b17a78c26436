package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/taskmarket/internal/config"
	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/ident"
	"github.com/roach88/taskmarket/internal/ledger"
	"github.com/roach88/taskmarket/internal/market"
	"github.com/roach88/taskmarket/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	m, err := market.New(context.Background(), testutil.NewStore(t), market.Options{
		Origin:     "web-test",
		Clock:      testutil.NewDeterministicClock(testutil.Epoch, time.Second),
		IDs:        func(prefix string) ident.Generator { return testutil.NewSequenceGenerator(prefix) },
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	s, err := New(m, config.ServerConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
	require.NoError(t, err)
	return s
}

// do sends a JSON request and returns the recorder.
func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, w).Error.Code
}

func signupToken(t *testing.T, s *Server, name, balance string) (string, domain.User) {
	t.Helper()
	w := do(t, s, http.MethodPost, "/api/signup", "", gin.H{
		"name":            name,
		"email":           name + "@example.com",
		"password":        "password123",
		"initial_balance": balance,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[tokenResponse](t, w)
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.User
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(nil, config.ServerConfig{})
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "web-test")
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t)
	_, alice := signupToken(t, s, "alice", "100")
	assert.Equal(t, "user_1", alice.ID)
	assert.Empty(t, alice.PasswordHash)
	assert.True(t, alice.WalletBalance.Equal(decimal.NewFromInt(100)))

	w := do(t, s, http.MethodPost, "/api/signup", "", gin.H{
		"name": "alice again", "email": "ALICE@example.com", "password": "x",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, market.CodeEmailTaken, errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/login", "", gin.H{"email": "alice@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, market.CodeInvalidCredentials, errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/login", "", gin.H{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, market.CodeInvalidInput, errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/login", "", gin.H{"email": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[tokenResponse](t, w).Token

	w = do(t, s, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[domain.User](t, w).Name)
	assert.NotContains(t, w.Body.String(), "password_hash")
}

func TestAuth_Rejections(t *testing.T) {
	s := newTestServer(t)
	token, _ := signupToken(t, s, "alice", "0")

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + token},
		{"garbage", "Bearer not-a-token"},
		{"tampered", "Bearer " + token + "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, market.CodeNotLoggedIn, errorCode(t, w))
		})
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	s := newTestServer(t)
	s.cfg.TokenTTL = time.Second
	token, _ := signupToken(t, s, "alice", "0")

	// The deterministic clock moves a second per reading, so the token is
	// past its expiry by the time it is checked.
	w := do(t, s, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice, _ := signupToken(t, s, "alice", "100")
	bob, _ := signupToken(t, s, "bob", "0")

	w := do(t, s, http.MethodPost, "/api/tasks", alice, gin.H{
		"title":    "Design logo",
		"reward":   "40",
		"deadline": "2024-02-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	task := decode[domain.Task](t, w)
	assert.Equal(t, "task_1", task.ID)
	assert.Equal(t, domain.StatusPublished, task.Status)

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/claim", alice, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, market.CodeSelfClaim, errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/claim", bob, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusOccupied, decode[domain.Task](t, w).Status)

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/confirm", alice, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, market.CodeInvalidTransition, errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/complete", alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, market.CodeNotOccupier, errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/complete", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusPendingPublisherConfirmation, decode[domain.Task](t, w).Status)

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/confirm", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	done := decode[domain.Task](t, w)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.True(t, done.RewardPaid.Equal(decimal.NewFromInt(40)))

	w = do(t, s, http.MethodGet, "/api/tasks/task_1/transactions", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	txns := decode[[]domain.Transaction](t, w)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TransactionConfirmed, txns[0].Status)

	w = do(t, s, http.MethodGet, "/api/me/summary", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[ledger.Summary](t, w)
	assert.True(t, summary.TotalEarned.Equal(decimal.NewFromInt(40)))

	w = do(t, s, http.MethodGet, "/api/me/payments", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[ledger.History](t, w)
	assert.Len(t, history.Sent, 1)
	assert.Empty(t, history.Received)
}

func TestTaskCRUD(t *testing.T) {
	s := newTestServer(t)
	alice, _ := signupToken(t, s, "alice", "0")
	bob, _ := signupToken(t, s, "bob", "0")

	w := do(t, s, http.MethodPost, "/api/tasks", alice, gin.H{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, market.CodeInvalidInput, errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/tasks", alice, gin.H{"title": "Draft", "reward": "5"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, s, http.MethodPatch, "/api/tasks/task_1", bob, gin.H{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, market.CodeNotPublisher, errorCode(t, w))

	w = do(t, s, http.MethodPatch, "/api/tasks/task_1", alice, gin.H{"title": "Final", "summary": "short"})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[domain.Task](t, w)
	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, "short", updated.Summary)
	assert.Equal(t, int64(2), updated.Version)

	w = do(t, s, http.MethodGet, "/api/tasks?mine=published", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]domain.Task](t, w))

	w = do(t, s, http.MethodGet, "/api/tasks?mine=published", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Task](t, w), 1)

	w = do(t, s, http.MethodGet, "/api/tasks?status=bogus", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodDelete, "/api/tasks/task_1", alice, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, http.MethodGet, "/api/tasks/task_1", alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, market.CodeTaskNotFound, errorCode(t, w))
}

func TestThreads(t *testing.T) {
	s := newTestServer(t)
	alice, _ := signupToken(t, s, "alice", "0")
	bob, _ := signupToken(t, s, "bob", "0")

	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/tasks", alice, gin.H{"title": "Write docs"}).Code)

	w := do(t, s, http.MethodPost, "/api/tasks/task_1/status", bob, gin.H{"text": "nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/status", alice, gin.H{"text": "kickoff"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/reports", bob, gin.H{
		"text":  "question",
		"files": []gin.H{{"name": "notes.txt", "url": "https://example.com/notes.txt"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/reports", alice, gin.H{"text": "answer"})
	require.Equal(t, http.StatusOK, w.Code)
	task := decode[domain.Task](t, w)
	require.Len(t, task.Reports, 2)
	assert.False(t, task.Reports[0].IsPublisherReply)
	assert.True(t, task.Reports[1].IsPublisherReply)
	require.Len(t, task.StatusUpdates, 1)
}

func TestRewards(t *testing.T) {
	s := newTestServer(t)
	alice, _ := signupToken(t, s, "alice", "50")
	bob, _ := signupToken(t, s, "bob", "0")

	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/tasks", alice, gin.H{"title": "Fix bug", "reward": "10"}).Code)

	w := do(t, s, http.MethodPost, "/api/tasks/task_1/reward", alice, gin.H{"amount": "100"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, market.CodeInsufficientFunds, errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/reward", alice, gin.H{"amount": "-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, market.CodeInvalidAmount, errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/reward", alice, gin.H{"amount": "20"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.Task](t, w).Reward.Equal(decimal.NewFromInt(30)))

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/pay", alice, gin.H{"amount": "5"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, market.CodeNoOccupier, errorCode(t, w))

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/tasks/task_1/claim", bob, nil).Code)

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/pay", alice, gin.H{"amount": "31"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, market.CodeOverpayment, errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/pay", alice, gin.H{"amount": 10})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.Task](t, w).RewardPaid.Equal(decimal.NewFromInt(10)))

	w = do(t, s, http.MethodGet, "/api/me", bob, nil)
	assert.True(t, decode[domain.User](t, w).WalletBalance.Equal(decimal.NewFromInt(10)))

	w = do(t, s, http.MethodPost, "/api/tasks/task_1/confirm-payment", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	settled := decode[domain.Task](t, w)
	assert.True(t, settled.RewardPaid.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, ledger.StateConfirmed, ledger.StateOf(settled, ledger.RoleOccupier))
}

func TestProfileAndDeposit(t *testing.T) {
	s := newTestServer(t)
	alice, _ := signupToken(t, s, "alice", "0")

	w := do(t, s, http.MethodPatch, "/api/me", alice, gin.H{"wallet_address": "0xabc"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xabc", decode[domain.User](t, w).WalletAddress)

	w = do(t, s, http.MethodPost, "/api/me/deposit", alice, gin.H{"amount": "12.50"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12.5", decode[domain.User](t, w).WalletBalance.String())

	w = do(t, s, http.MethodPost, "/api/me/deposit", alice, gin.H{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{market.CodeTaskNotFound, http.StatusNotFound},
		{market.CodeInvalidTransition, http.StatusConflict},
		{market.CodeNotPublisher, http.StatusForbidden},
		{market.CodeOverpayment, http.StatusUnprocessableEntity},
		{market.CodeNotLoggedIn, http.StatusUnauthorized},
		{market.CodeInternal, http.StatusInternalServerError},
		{"something_new", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.code))
		})
	}
}
