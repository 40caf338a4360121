package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botify/internal/api/handler"
	"botify/internal/model"
	"botify/internal/service"
)

const testSecret = "test-secret"

// ============================================================================
// Stubs
// ============================================================================

type stubAuth struct {
	registerFn func(ctx context.Context, email, password string) (string, *model.User, error)
	loginFn    func(ctx context.Context, email, password string) (string, *model.User, error)
}

func (s *stubAuth) Register(ctx context.Context, email, password string) (string, *model.User, error) {
	return s.registerFn(ctx, email, password)
}

func (s *stubAuth) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	return s.loginFn(ctx, email, password)
}

type stubLedger struct {
	mu        sync.Mutex
	purchases int
	lastLimit int
	grants    []string

	purchaseErr error
}

func (s *stubLedger) GetUserData(_ context.Context, userID string) (*model.User, error) {
	if userID == "missing" {
		return nil, service.ErrNotFound
	}
	return &model.User{ID: userID, Bites: 42}, nil
}

func (s *stubLedger) Dashboard(_ context.Context, userID string) (*service.Dashboard, error) {
	return &service.Dashboard{User: &model.User{ID: userID}, BotsNeeded: 1}, nil
}

func (s *stubLedger) ListTransactions(_ context.Context, _ string, limit int) ([]*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	return []*model.Transaction{{ID: "txn-1", Type: model.TxTypeEarn, Amount: 5}}, nil
}

func (s *stubLedger) PublishBot(_ context.Context, authorID string, draft service.BotDraft) (*model.Bot, error) {
	if draft.Price > 0 {
		return nil, service.ErrMonetizationLocked
	}
	return &model.Bot{ID: "bot-1", Title: draft.Title, UserID: authorID}, nil
}

func (s *stubLedger) PurchaseBot(_ context.Context, _, botID string) (*service.PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.purchaseErr != nil {
		return nil, s.purchaseErr
	}
	s.purchases++
	return &service.PurchaseResult{BotID: botID, Price: 5, Balance: 10}, nil
}

func (s *stubLedger) DeleteBot(_ context.Context, requesterID, _ string) error {
	if requesterID != "usr-owner" {
		return service.ErrNotOwner
	}
	return nil
}

func (s *stubLedger) QueryEntitlement(_ context.Context, _, _ string) (model.Entitlement, error) {
	return model.Entitlement{Purchased: true}, nil
}

func (s *stubLedger) GrantBites(_ context.Context, _, userID string, amount int64, _ string) (*model.User, error) {
	if amount <= 0 {
		return nil, service.ErrInvalidAmount
	}
	s.mu.Lock()
	s.grants = append(s.grants, "id:"+userID)
	s.mu.Unlock()
	return &model.User{ID: userID, Bites: amount}, nil
}

func (s *stubLedger) GrantBitesByEmail(_ context.Context, _, email string, amount int64, _ string) (*model.User, error) {
	s.mu.Lock()
	s.grants = append(s.grants, "email:"+email)
	s.mu.Unlock()
	return &model.User{ID: "usr-mail", Email: email, Bites: amount}, nil
}

type stubCatalog struct {
	uploads []string
}

func (s *stubCatalog) ListBots(_ context.Context, officialOnly bool) ([]*model.Bot, error) {
	if officialOnly {
		return []*model.Bot{{ID: "bot-official", Official: true}}, nil
	}
	return []*model.Bot{{ID: "bot-official", Official: true}, {ID: "bot-1"}}, nil
}

func (s *stubCatalog) GetBot(_ context.Context, botID string) (*model.Bot, error) {
	return nil, service.ErrNotFound
}

func (s *stubCatalog) AddOfficialBot(_ context.Context, _ string, draft service.BotDraft) (*model.Bot, error) {
	return &model.Bot{ID: "bot-official", Title: draft.Title, Official: true}, nil
}

func (s *stubCatalog) UploadPackage(_ context.Context, ownerID, fileName string, official bool, r io.Reader) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	folder := ownerID
	if official {
		folder = "official"
	}
	s.uploads = append(s.uploads, folder+"/"+fileName)
	return "mem://" + folder + "/" + fileName, nil
}

func (s *stubCatalog) Download(_ context.Context, _, botID string) (string, error) {
	if botID == "bot-paid" {
		return "", service.ErrNotEntitled
	}
	return "mem://" + botID + ".zip", nil
}

func (s *stubCatalog) RateBot(_ context.Context, _, botID string, stars int) (*model.Bot, error) {
	if stars > model.MaxRating {
		return nil, service.ErrInvalidRating
	}
	return &model.Bot{ID: botID, Rating: float64(stars), RatingsCount: 1}, nil
}

type memDedup struct {
	mu       sync.Mutex
	seen     map[string]bool
	released int
}

func (d *memDedup) Claim(_ context.Context, scope, userID, requestID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := scope + ":" + userID + ":" + requestID
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, scope, userID, requestID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, scope+":"+userID+":"+requestID)
	d.released++
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

type fixture struct {
	router  http.Handler
	ledger  *stubLedger
	catalog *stubCatalog
	dedup   *memDedup
}

func newFixture(t *testing.T, checks map[string]handler.Check) *fixture {
	t.Helper()
	f := &fixture{
		ledger:  &stubLedger{},
		catalog: &stubCatalog{},
		dedup:   &memDedup{seen: make(map[string]bool)},
	}
	auth := &stubAuth{
		registerFn: func(_ context.Context, email, _ string) (string, *model.User, error) {
			if email == "taken@example.com" {
				return "", nil, service.ErrEmailTaken
			}
			return "token", &model.User{ID: "usr-new", Email: email}, nil
		},
		loginFn: func(_ context.Context, _, password string) (string, *model.User, error) {
			if password != "secret1" {
				return "", nil, service.ErrInvalidCredentials
			}
			return "token", &model.User{ID: "usr-1"}, nil
		},
	}
	f.router = NewRouter(Deps{
		Auth:       auth,
		Ledger:     f.ledger,
		Catalog:    f.catalog,
		Dedup:      f.dedup,
		Checks:     checks,
		JWTSecret:  testSecret,
		Logger:     zerolog.Nop(),
		Registerer: prometheus.NewRegistry(),
	})
	return f
}

func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		service.ClaimUserID: userID,
		service.ClaimRole:   role,
		"exp":               time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (f *fixture) do(t *testing.T, method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// ============================================================================
// Tests
// ============================================================================

func TestResolveError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrNotAuthenticated, http.StatusUnauthorized},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrNotOwner, http.StatusForbidden},
		{service.ErrNotEntitled, http.StatusForbidden},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrInsufficientFunds, http.StatusPaymentRequired},
		{service.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{service.ErrMonetizationLocked, http.StatusUnprocessableEntity},
		{service.ErrInvalidRating, http.StatusUnprocessableEntity},
		{service.ErrInvalidInput, http.StatusUnprocessableEntity},
		{service.ErrEmailTaken, http.StatusConflict},
		{errors.Join(service.ErrStoreUnavailable, errors.New("conn refused")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
			code, _ := resolveError(tt.err, zerolog.Nop(), c)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/auth/register", "", `{"email":"new@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "token", decode(t, rec)["token"])

	rec = f.do(t, http.MethodPost, "/auth/register", "", `{"email":"nope","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/register", "", `{"email":"taken@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", "", `{"email":"a@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", "", `{"email":"a@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAccountRoutes(t *testing.T) {
	f := newFixture(t, nil)
	token := tokenFor(t, "usr-1", model.RoleUser)

	rec := f.do(t, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "usr-1", decode(t, rec)["id"])

	rec = f.do(t, http.MethodGet, "/api/me", tokenFor(t, "missing", model.RoleUser), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/me/dashboard", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["botsNeeded"])

	rec = f.do(t, http.MethodGet, "/api/me/transactions?limit=5", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.ledger.lastLimit)

	rec = f.do(t, http.MethodGet, "/api/me/transactions?limit=5000", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, f.ledger.lastLimit)

	rec = f.do(t, http.MethodGet, "/api/me/transactions?limit=abc", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBotRoutes(t *testing.T) {
	f := newFixture(t, nil)
	token := tokenFor(t, "usr-1", model.RoleUser)

	rec := f.do(t, http.MethodGet, "/api/bots?official=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["bots"], 1)

	rec = f.do(t, http.MethodGet, "/api/bots", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["bots"], 2)

	rec = f.do(t, http.MethodGet, "/api/bots/bot-x", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bots", token, `{"title":"Echo","price":0}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bots", token, `{"title":"Echo","price":5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bots", token, `{"price":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/bots/bot-1", token, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/bots/bot-1", tokenFor(t, "usr-owner", model.RoleUser), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/bots/bot-1/entitlement", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["purchased"])

	rec = f.do(t, http.MethodPost, "/api/bots/bot-paid/download", token, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bots/bot-free/download", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mem://bot-free.zip", decode(t, rec)["file_url"])

	rec = f.do(t, http.MethodPost, "/api/bots/bot-1/rate", token, `{"rating":4}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bots/bot-1/rate", token, `{"rating":9}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPurchase_Dedup(t *testing.T) {
	f := newFixture(t, nil)
	token := tokenFor(t, "usr-1", model.RoleUser)

	rec := f.do(t, http.MethodPost, "/api/bots/bot-1/purchase", token, "", "X-Request-ID", "req-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 5, decode(t, rec)["price"])

	rec = f.do(t, http.MethodPost, "/api/bots/bot-1/purchase", token, "", "X-Request-ID", "req-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bots/bot-1/purchase", tokenFor(t, "usr-2", model.RoleUser), "", "X-Request-ID", "req-1")
	assert.Equal(t, http.StatusOK, rec.Code, "request ids are scoped per user")

	rec = f.do(t, http.MethodPost, "/api/bots/bot-2/purchase", token, "", "X-Request-ID", "req-1")
	assert.Equal(t, http.StatusOK, rec.Code, "request ids are scoped per bot")

	rec = f.do(t, http.MethodPost, "/api/bots/bot-1/purchase", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/bots/bot-1/purchase", token, "")
	assert.Equal(t, http.StatusOK, rec.Code, "requests without an id are not de-duplicated")

	assert.Equal(t, 5, f.ledger.purchases)
}

func TestPurchase_FailureReleasesClaim(t *testing.T) {
	f := newFixture(t, nil)
	token := tokenFor(t, "usr-1", model.RoleUser)

	f.ledger.purchaseErr = service.ErrInsufficientFunds
	rec := f.do(t, http.MethodPost, "/api/bots/bot-1/purchase", token, "", "X-Request-ID", "req-9")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, 1, f.dedup.released)

	f.ledger.purchaseErr = nil
	rec = f.do(t, http.MethodPost, "/api/bots/bot-1/purchase", token, "", "X-Request-ID", "req-9")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpload(t *testing.T) {
	f := newFixture(t, nil)

	upload := func(path, token, name string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("PK\x03\x04"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, path, &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("/api/bots/upload", tokenFor(t, "usr-1", model.RoleUser), "bot.zip")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "mem://usr-1/bot.zip", decode(t, rec)["file_url"])

	rec = upload("/api/admin/official-bots/upload", tokenFor(t, "usr-1", model.RoleUser), "bot.zip")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = upload("/api/admin/official-bots/upload", tokenFor(t, "usr-admin", model.RoleAdmin), "helper.zip")
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, []string{"usr-1/bot.zip", "official/helper.zip"}, f.catalog.uploads)

	rec = f.do(t, http.MethodPost, "/api/bots/upload", tokenFor(t, "usr-1", model.RoleUser), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t, nil)
	admin := tokenFor(t, "usr-admin", model.RoleAdmin)
	user := tokenFor(t, "usr-1", model.RoleUser)

	rec := f.do(t, http.MethodPost, "/api/admin/grant", user, `{"user_id":"usr-1","amount":10}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/admin/grant", admin, `{"user_id":"usr-1","amount":10,"reason":"contest"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 10, decode(t, rec)["bites"])

	rec = f.do(t, http.MethodPost, "/api/admin/grant", admin, `{"email":"b@example.com","amount":3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/grant", admin, `{"user_id":"usr-1","amount":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/grant", admin, `{"amount":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []string{"id:usr-1", "email:b@example.com"}, f.ledger.grants)

	rec = f.do(t, http.MethodPost, "/api/admin/official-bots", admin, `{"title":"Helper"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, decode(t, rec)["official"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t, map[string]handler.Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	deps := decode(t, rec)["dependencies"].(map[string]any)
	assert.Equal(t, "ok", deps["postgres"].(map[string]any)["status"])
	assert.Equal(t, "unhealthy", deps["redis"].(map[string]any)["status"])

	rec = f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
