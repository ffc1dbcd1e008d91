package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"fintrack/internal/auth"
	"fintrack/internal/config"
	"fintrack/internal/handler"
	"fintrack/internal/model"
	"fintrack/internal/obs"
	"fintrack/internal/repository"
	"fintrack/internal/service"
)

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func (r *memUsers) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email || u.Username == user.Username {
			return gorm.ErrDuplicatedKey
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memUsers) find(match func(*model.User) bool) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUsers) FindByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username })
}

func (r *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email })
}

type memTransactions struct {
	mu  sync.Mutex
	txs map[uuid.UUID]model.Transaction
}

func (r *memTransactions) Create(_ context.Context, tx *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx.ID = uuid.New()
	r.txs[tx.ID] = *tx
	return nil
}

func (r *memTransactions) FindByIDForUser(_ context.Context, id, userID uuid.UUID) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok || tx.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return &tx, nil
}

func (r *memTransactions) ListByUser(_ context.Context, userID uuid.UUID, filter repository.ListFilter) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Transaction
	for _, tx := range r.txs {
		if tx.UserID != userID || (filter.Category != "" && tx.Category != filter.Category) {
			continue
		}
		if !inRange(tx.Date, filter.From, filter.To) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memTransactions) Update(_ context.Context, tx *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.txs[tx.ID]; !ok || cur.UserID != tx.UserID {
		return gorm.ErrRecordNotFound
	}
	r.txs[tx.ID] = *tx
	return nil
}

func (r *memTransactions) DeleteForUser(_ context.Context, id, userID uuid.UUID) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok || tx.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	delete(r.txs, id)
	return &tx, nil
}

func (r *memTransactions) Summarize(_ context.Context, userID uuid.UUID, from, to *time.Time) (*model.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &model.Summary{}
	for _, tx := range r.txs {
		if tx.UserID != userID || !inRange(tx.Date, from, to) {
			continue
		}
		s.TotalTransactions++
		if tx.Category == model.CategoryIncome {
			s.TotalIncome = s.TotalIncome.Add(tx.Amount)
		} else {
			s.TotalExpense = s.TotalExpense.Add(tx.Amount)
		}
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpense)
	return s, nil
}

func inRange(t time.Time, from, to *time.Time) bool {
	return (from == nil || !t.Before(*from)) && (to == nil || t.Before(*to))
}

type fixedRates map[string]decimal.Decimal

func (f fixedRates) Rates(context.Context, string) (map[string]decimal.Decimal, error) {
	return f, nil
}

type testServer struct {
	e        *echo.Echo
	metrics  *obs.Metrics
	registry *auth.MemoryRevocations
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{CORSAllowedOrigins: []string{"*"}}

	users := &memUsers{users: map[uuid.UUID]*model.User{}}
	txs := &memTransactions{txs: map[uuid.UUID]model.Transaction{}}
	tokens := auth.NewJWTService("access-secret", "refresh-secret", 30*time.Minute, 24*time.Hour)
	registry := auth.NewMemoryRevocations()
	metrics := obs.NewMetrics()

	authService := service.NewAuthService(users, auth.NewBcryptHasher(bcrypt.MinCost), tokens, registry, nil, metrics, logger)
	txService := service.NewTransactionService(txs, nil, logger)
	fxService := service.NewExchangeService(fixedRates{"EUR": decimal.RequireFromString("0.5")}, nil, time.Minute, logger)

	authenticator := auth.NewAuthenticator(registry, tokens, users, logger).OnReject(metrics.RecordAuthRejection)

	e := echo.New()
	Register(e, cfg, logger, metrics, authenticator, Handlers{
		Auth:        handler.NewAuthHandler(authService, auth.CookieConfig{SameSite: http.SameSiteLaxMode}),
		Transaction: handler.NewTransactionHandler(txService),
		Exchange:    handler.NewExchangeHandler(fxService),
	})
	return &testServer{e: e, metrics: metrics, registry: registry}
}

func (s *testServer) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signupAndLogin(t *testing.T, username, email, password string) []*http.Cookie {
	t.Helper()
	rec := s.do(http.MethodPost, "/auth/signup", `{"username":"`+username+`","email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/auth/login", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec.Result().Cookies()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, ck := range cookies {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestSignup(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/signup", `{"username":"alice","email":"a@x.com","password":"pw123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "a@x.com", body["email"])
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "password_hash")

	rec = s.do(http.MethodPost, "/auth/signup", `{"username":"alice2","email":"a@x.com","password":"pw123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered", decode(t, rec)["error"])

	rec = s.do(http.MethodPost, "/auth/signup", `{"username":"bob","email":"not-an-email","password":"pw123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec)["code"])
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/auth/signup", `{"username":"alice","email":"a@x.com","password":"pw123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = s.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"pw123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "bearer", body["token_type"])
	assert.NotContains(t, body, "access_token")

	cookies := rec.Result().Cookies()
	access := cookieNamed(cookies, auth.AccessCookieName)
	refresh := cookieNamed(cookies, auth.RefreshCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.True(t, strings.HasPrefix(access.Value, "Bearer "))
	assert.Equal(t, "/auth", refresh.Path)
}

func TestCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/auth/check", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated", decode(t, rec)["error"])

	cookies := s.signupAndLogin(t, "alice", "a@x.com", "pw123")
	rec = s.do(http.MethodGet, "/auth/check", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
}

func TestTransactionsAndSummary(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signupAndLogin(t, "alice", "a@x.com", "pw123")

	rec := s.do(http.MethodGet, "/auth/check", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	aliceID := decode(t, rec)["user"].(map[string]interface{})["id"]

	rec = s.do(http.MethodPost, "/transactions/", `{"amount":1000,"category":"income"}`, cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, aliceID, created["user_id"])

	rec = s.do(http.MethodPost, "/transactions", `{"amount":"250.50","category":"expense","description":"groceries"}`, cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/transactions/", `{"amount":5,"category":"gift"}`, cookies...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_CATEGORY", decode(t, rec)["code"])

	rec = s.do(http.MethodGet, "/transactions/summary", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)
	assert.EqualValues(t, 2, summary["total_transactions"])
	income, err := decimal.NewFromString(summary["total_income"].(string))
	require.NoError(t, err)
	assert.True(t, income.Equal(decimal.NewFromInt(1000)))
	balance, err := decimal.NewFromString(summary["balance"].(string))
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("749.5")))

	rec = s.do(http.MethodGet, "/transactions/?limit=1", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	var page []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page, 1)

	rec = s.do(http.MethodGet, "/transactions/?limit=101", "", cookies...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/transactions/export?format=csv", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "transactions.csv")
	assert.Contains(t, rec.Body.String(), "groceries")

	rec = s.do(http.MethodGet, "/transactions/export?format=xlsx", "", cookies...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnership(t *testing.T) {
	s := newTestServer(t)
	alice := s.signupAndLogin(t, "alice", "a@x.com", "pw123")
	bob := s.signupAndLogin(t, "bob", "b@x.com", "pw456")

	rec := s.do(http.MethodPost, "/transactions/", `{"amount":40,"category":"expense"}`, alice...)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode(t, rec)["id"].(string)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		body := ""
		if method == http.MethodPut {
			body = `{"amount":1}`
		}
		rec = s.do(method, "/transactions/"+id, body, bob...)
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
	}

	rec = s.do(http.MethodGet, "/transactions/"+uuid.NewString(), "", alice...)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPut, "/transactions/"+id, `{"description":"coffee"}`, alice...)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode(t, rec)
	assert.Equal(t, "coffee", updated["description"])

	rec = s.do(http.MethodDelete, "/transactions/"+id, "", alice...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode(t, rec)["id"])

	rec = s.do(http.MethodGet, "/transactions/"+id, "", alice...)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signupAndLogin(t, "alice", "a@x.com", "pw123")

	rec := s.do(http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/auth/logout", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", decode(t, rec)["message"])
	cleared := cookieNamed(rec.Result().Cookies(), auth.AccessCookieName)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	rec = s.do(http.MethodGet, "/transactions/", "", cookies...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated", decode(t, rec)["error"])

	access := cookieNamed(cookies, auth.AccessCookieName)
	req := httptest.NewRequest(http.MethodGet, "/auth/check", nil)
	req.Header.Set(echo.HeaderAuthorization, access.Value)
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/auth/refresh", "", cookieNamed(cookies, auth.RefreshCookieName))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutIgnoresUnverifiableTokens(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set(echo.HeaderAuthorization, fmt.Sprintf("Bearer garbage-%d", i))
		rec := httptest.NewRecorder()
		s.e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Zero(t, s.registry.Len())

	cookies := s.signupAndLogin(t, "alice", "a@x.com", "pw123")
	rec := s.do(http.MethodPost, "/auth/logout", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, s.registry.Len())
}

func TestRefreshRotatesCookies(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signupAndLogin(t, "alice", "a@x.com", "pw123")
	refresh := cookieNamed(cookies, auth.RefreshCookieName)

	rec := s.do(http.MethodPost, "/auth/refresh", "", refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := rec.Result().Cookies()
	require.NotNil(t, cookieNamed(rotated, auth.AccessCookieName))

	rec = s.do(http.MethodGet, "/auth/check", "", cookieNamed(rotated, auth.AccessCookieName))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/auth/refresh", "", refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExchangeRateIsPublic(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/transactions/exchange-rate?from=USD&to=EUR&amount=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	result, err := decimal.NewFromString(body["result"].(string))
	require.NoError(t, err)
	assert.True(t, result.Equal(decimal.NewFromInt(5)))

	rec = s.do(http.MethodGet, "/transactions/exchange-rate?from=USD&to=ZZZ", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	s.do(http.MethodGet, "/auth/check", "")
	rec = s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `auth_rejections_total{reason="missing_token"} 1`)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}
