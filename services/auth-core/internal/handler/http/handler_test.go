package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"AuthCorePlatform/pkg/config"
	"AuthCorePlatform/pkg/connection"
	"AuthCorePlatform/pkg/health"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/pkg/metrics"
	"AuthCorePlatform/pkg/mocks"
	"AuthCorePlatform/pkg/ratelimit"
	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/middleware"
	"AuthCorePlatform/services/auth-core/internal/pkg/token"
	"AuthCorePlatform/services/auth-core/internal/revocation"
	"AuthCorePlatform/services/auth-core/internal/routing"
	"AuthCorePlatform/services/auth-core/internal/service"
	"AuthCorePlatform/services/auth-core/internal/session"
	"AuthCorePlatform/services/auth-core/internal/store"
)

var (
	support    = domain.Principal{ID: "admin-1", Email: "support@example.com", Role: domain.RoleAdmin, AdminRole: domain.AdminRoleSupport}
	superadmin = domain.Principal{ID: "admin-0", Email: "root@example.com", Role: domain.RoleAdmin, AdminRole: domain.AdminRoleSuperadmin}
	business   = domain.Principal{ID: "biz-1", Email: "biz@example.com", Role: domain.RoleBusiness, AdvertiserID: "adv-1"}
	alice      = domain.Principal{ID: "user-1", Email: "alice@example.com", Username: "alice", Role: domain.RoleUser}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingAudit запоминает записанные действия
type recordingAudit struct {
	mu      sync.Mutex
	actions []domain.AdminAction
}

func (r *recordingAudit) Record(_ context.Context, action domain.AdminAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

func (r *recordingAudit) last() domain.AdminAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.actions) == 0 {
		return domain.AdminAction{}
	}
	return r.actions[len(r.actions)-1]
}

// failingWrites хранилище, в котором не проходит запись строк
type failingWrites struct {
	store.Store
}

func (failingWrites) Set(context.Context, string, string, time.Duration) error {
	return domain.ErrStoreUnavailable
}

type testEnv struct {
	clock   *testClock
	tokens  *token.Manager
	service *service.Service
	audit   *recordingAudit
	handler *Handler
}

type envOptions struct {
	wrap       func(store.Store) store.Store
	adminLimit int
	limiter    ratelimit.RateLimiter
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	var kv store.Store = store.NewMemoryStore(store.WithClock(clock.Now))
	if opts.wrap != nil {
		kv = opts.wrap(kv)
	}

	tokens, err := token.NewManager("handler-test-secret-0123456789abcdef", token.WithClock(clock.Now))
	require.NoError(t, err)

	log := logger.NewNop()
	retry := connection.RetryConfig{MaxAttempts: 1}
	blacklist := revocation.NewBlacklistStore(kv, log, revocation.WithClock(clock.Now), revocation.WithRetry(retry))
	sessions := session.NewStore(kv, log, session.WithClock(clock.Now), session.WithRetry(retry))
	router := routing.NewRouter(config.Default().Gateway)
	svc := service.NewAuthService(tokens, blacklist, sessions, router, "auth_token", log)

	checker := health.NewDependencyHealthChecker("test", time.Second).Register("store", true, kv.Ping)
	registry := prometheus.NewRegistry()

	recorder := &recordingAudit{}
	limit := opts.adminLimit
	if limit == 0 {
		limit = 100
	}

	var limiter ratelimit.RateLimiter = ratelimit.NewMemoryRateLimiter()
	if opts.limiter != nil {
		limiter = opts.limiter
	}

	h := NewHandler(Dependencies{
		Auth:                   svc,
		Audit:                  recorder,
		Limiter:                limiter,
		Health:                 checker,
		Metrics:                metrics.NewMetricsWithRegistry("auth-core-test", registry, registry),
		Cookies:                middleware.Cookies{Name: "auth_token", MaxAge: 7 * 24 * time.Hour},
		AdminRequestsPerMinute: limit,
		Logger:                 log,
	})

	return &testEnv{clock: clock, tokens: tokens, service: svc, audit: recorder, handler: h}
}

func (e *testEnv) mint(t *testing.T, p domain.Principal) string {
	t.Helper()
	tok, _, err := e.tokens.Mint(p)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) issue(t *testing.T, p domain.Principal) string {
	t.Helper()
	issued, err := e.service.IssueSession(context.Background(), p)
	require.NoError(t, err)
	// Токены одного субъекта различаются временем выпуска
	e.clock.Advance(time.Second)
	return issued.Token
}

type response struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Data    map[string]interface{} `json:"data"`
	Action  *struct {
		Type        string    `json:"type"`
		PerformedBy string    `json:"performedBy"`
		Reason      string    `json:"reason"`
		Timestamp   time.Time `json:"timestamp"`
	} `json:"action"`
}

func (e *testEnv) call(t *testing.T, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, response) {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			payload.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&payload).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var resp response
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestAdmin_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w, resp := env.call(t, http.MethodGet, "/admin/auth/blacklist-stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "UNAUTHORIZED", resp.Code)

	w, resp = env.call(t, http.MethodGet, "/admin/auth/blacklist-stats", "not.a.token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", resp.Code)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, p := range []domain.Principal{business, alice} {
		w, resp := env.call(t, http.MethodGet, "/admin/auth/blacklist-stats", env.mint(t, p), nil)
		assert.Equal(t, http.StatusForbidden, w.Code, p.Role)
		assert.Equal(t, "FORBIDDEN", resp.Code)
	}
}

func TestAdmin_BlacklistStats(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	require.NoError(t, env.service.Logout(context.Background(), env.issue(t, alice)))

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w, resp := env.call(t, method, "/admin/auth/blacklist-stats", env.mint(t, support), nil)
		require.Equal(t, http.StatusOK, w.Code, method)
		assert.True(t, resp.Success)

		stats, ok := resp.Data["stats"].(map[string]interface{})
		require.True(t, ok)
		assert.EqualValues(t, 1, stats["total"])

		require.NotNil(t, resp.Action)
		assert.Equal(t, "view_stats", resp.Action.Type)
		assert.Equal(t, support.ID, resp.Action.PerformedBy)
		assert.False(t, resp.Action.Timestamp.IsZero())
	}

	w, _ := env.call(t, http.MethodDelete, "/admin/auth/blacklist-stats", env.mint(t, support), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAdmin_BlacklistToken(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	victim := env.issue(t, alice)

	w, resp := env.call(t, http.MethodPost, "/admin/auth/blacklist-token", env.mint(t, support),
		map[string]string{"token": victim, "reason": " compromised "})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, alice.ID, resp.Data["userId"])
	require.NotNil(t, resp.Action)
	assert.Equal(t, "blacklist_token", resp.Action.Type)
	assert.Equal(t, "compromised", resp.Action.Reason)

	_, err := env.service.Authenticate(context.Background(), victim)
	assert.ErrorIs(t, err, domain.ErrBlacklisted)

	recorded := env.audit.last()
	signature, err := revocation.SignatureOf(victim)
	require.NoError(t, err)
	assert.Equal(t, signature, recorded.Target)
	assert.Equal(t, resultSuccess, recorded.Result)
	assert.Equal(t, support.ID, recorded.PerformedBy)
}

func TestAdmin_BlacklistToken_BadRequests(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	admin := env.mint(t, support)

	forged := env.mint(t, alice)
	forged = forged[:len(forged)-4] + "AAAA"

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"invalid json", "{", http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing token", map[string]string{"reason": "x"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"malformed token", map[string]string{"token": "abc"}, http.StatusBadRequest, "INVALID_TOKEN"},
		{"forged signature", map[string]string{"token": forged}, http.StatusBadRequest, "INVALID_TOKEN"},
		{"reason too long", map[string]string{"token": forged, "reason": string(bytes.Repeat([]byte("r"), 501))}, http.StatusBadRequest, "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.call(t, http.MethodPost, "/admin/auth/blacklist-token", admin, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
		})
	}

	w, _ := env.call(t, http.MethodGet, "/admin/auth/blacklist-token", admin, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
}

func TestAdmin_BlacklistUserTokens(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	first := env.issue(t, alice)
	second := env.issue(t, alice)

	w, resp := env.call(t, http.MethodPost, "/admin/auth/blacklist-user-tokens", env.mint(t, support),
		map[string]string{"userId": alice.ID, "reason": "account takeover"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, resp.Data["revoked"])
	assert.Equal(t, "blacklist_user_tokens", resp.Action.Type)

	for _, tok := range []string{first, second} {
		_, err := env.service.Authenticate(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrBlacklisted)
	}
	assert.Equal(t, 2, env.audit.last().Count)

	w, resp = env.call(t, http.MethodPost, "/admin/auth/blacklist-user-tokens", env.mint(t, support),
		map[string]string{"userId": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", resp.Code)

	w, resp = env.call(t, http.MethodPost, "/admin/auth/blacklist-user-tokens", env.mint(t, support),
		map[string]string{"userId": "user:*"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", resp.Code)
}

func TestAdmin_BlacklistOwnTokens(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	supportToken := env.issue(t, support)
	w, resp := env.call(t, http.MethodPost, "/admin/auth/blacklist-user-tokens", supportToken,
		map[string]string{"userId": support.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", resp.Code)
	require.NotNil(t, resp.Action)
	assert.Equal(t, resultForbidden, env.audit.last().Result)

	rootToken := env.issue(t, superadmin)
	w, resp = env.call(t, http.MethodPost, "/admin/auth/blacklist-user-tokens", rootToken,
		map[string]string{"userId": superadmin.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp.Data["revoked"])

	w, _ = env.call(t, http.MethodGet, "/admin/auth/blacklist-stats", rootToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_UnblacklistToken(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	victim := env.issue(t, alice)
	require.NoError(t, env.service.Logout(context.Background(), victim))

	w, resp := env.call(t, http.MethodPost, "/admin/auth/unblacklist-token", env.mint(t, support),
		map[string]string{"token": victim})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", resp.Code)

	root := env.mint(t, superadmin)
	w, resp = env.call(t, http.MethodPost, "/admin/auth/unblacklist-token", root,
		map[string]string{"token": victim, "reason": "false positive"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unblacklist_token", resp.Action.Type)
	assert.Equal(t, "false positive", resp.Action.Reason)

	_, err := env.service.Authenticate(context.Background(), victim)
	assert.NoError(t, err)

	w, resp = env.call(t, http.MethodPost, "/admin/auth/unblacklist-token", root,
		map[string]string{"token": victim})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Code)
	assert.Equal(t, resultFailed, env.audit.last().Result)
}

func TestAdmin_RateLimit(t *testing.T) {
	env := newTestEnv(t, envOptions{adminLimit: 2})
	admin := env.mint(t, support)

	for i := 0; i < 2; i++ {
		w, _ := env.call(t, http.MethodGet, "/admin/auth/blacklist-stats", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, resp := env.call(t, http.MethodGet, "/admin/auth/blacklist-stats", admin, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", resp.Code)

	w, _ = env.call(t, http.MethodGet, "/admin/auth/blacklist-stats", env.mint(t, superadmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdmin_RejectionsCarryAction(t *testing.T) {
	env := newTestEnv(t, envOptions{adminLimit: 3})
	admin := env.mint(t, support)

	tests := []struct {
		name        string
		method      string
		path        string
		bearer      string
		body        interface{}
		status      int
		actionType  string
		performedBy string
	}{
		{"no token", http.MethodPost, "/admin/auth/blacklist-token", "", nil, http.StatusUnauthorized, "blacklist_token", ""},
		{"not admin", http.MethodPost, "/admin/auth/blacklist-user-tokens", env.mint(t, alice), nil, http.StatusForbidden, "blacklist_user_tokens", alice.ID},
		{"invalid json", http.MethodPost, "/admin/auth/blacklist-token", admin, "{", http.StatusBadRequest, "blacklist_token", support.ID},
		{"missing field", http.MethodPost, "/admin/auth/unblacklist-token", admin, map[string]string{"reason": "x"}, http.StatusBadRequest, "unblacklist_token", support.ID},
		{"wrong method", http.MethodDelete, "/admin/auth/blacklist-stats", admin, nil, http.StatusMethodNotAllowed, "view_stats", support.ID},
		{"rate limited", http.MethodGet, "/admin/auth/blacklist-stats", admin, nil, http.StatusTooManyRequests, "view_stats", support.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.call(t, tt.method, tt.path, tt.bearer, tt.body)
			require.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Action)
			assert.Equal(t, tt.actionType, resp.Action.Type)
			assert.Equal(t, tt.performedBy, resp.Action.PerformedBy)
			assert.False(t, resp.Action.Timestamp.IsZero())
		})
	}

	assert.Equal(t, resultForbidden, env.audit.actions[0].Result)
	assert.Equal(t, alice.ID, env.audit.actions[0].PerformedBy)
}

func TestAdmin_RateLimiterFailureAllows(t *testing.T) {
	limiter := &mocks.MockRateLimiter{}
	limiter.On("CheckRateLimit", mock.Anything, "admin:"+support.ID, 100, time.Minute).
		Return(false, errors.New("redis: connection refused"))

	env := newTestEnv(t, envOptions{limiter: limiter})

	w, resp := env.call(t, http.MethodGet, "/admin/auth/blacklist-stats", env.mint(t, support), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	limiter.AssertExpectations(t)
}

func TestAdmin_StoreWriteFailure(t *testing.T) {
	env := newTestEnv(t, envOptions{wrap: func(kv store.Store) store.Store { return failingWrites{Store: kv} }})

	w, resp := env.call(t, http.MethodPost, "/admin/auth/blacklist-token", env.mint(t, support),
		map[string]string{"token": env.mint(t, alice)})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
	assert.Equal(t, resultFailed, env.audit.last().Result)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	tok := env.issue(t, alice)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: tok})
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "auth_token", cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)

	_, err := env.service.Authenticate(context.Background(), tok)
	assert.ErrorIs(t, err, domain.ErrBlacklisted)
	assert.Equal(t, domain.ActionLogout, env.audit.last().Type)
	assert.Equal(t, alice.ID, env.audit.last().PerformedBy)

	w, resp := env.call(t, http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Already logged out", resp.Message)

	w, resp = env.call(t, http.MethodPost, "/auth/logout", "garbage", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestLogout_StoreFailureSurfaces(t *testing.T) {
	env := newTestEnv(t, envOptions{wrap: func(kv store.Store) store.Store { return failingWrites{Store: kv} }})

	w, resp := env.call(t, http.MethodPost, "/auth/logout", env.mint(t, alice), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
}

func TestSession(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	tok := env.issue(t, alice)

	w, resp := env.call(t, http.MethodGet, "/auth/session", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sess, ok := resp.Data["session"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, alice.ID, sess["id"])
	assert.Equal(t, alice.Email, sess["email"])

	w, resp = env.call(t, http.MethodGet, "/auth/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", resp.Code)

	w, resp = env.call(t, http.MethodGet, "/auth/session", env.mint(t, business), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Code)
}

func TestHealthRoutes(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, path := range []string{"/health", "/ready", "/live"} {
		w, _ := env.call(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w, _ := env.call(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandles(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	assert.True(t, env.handler.Handles(httptest.NewRequest(http.MethodPost, "/admin/auth/blacklist-token", nil)))
	assert.True(t, env.handler.Handles(httptest.NewRequest(http.MethodGet, "/health", nil)))
	assert.False(t, env.handler.Handles(httptest.NewRequest(http.MethodGet, "/dashboard", nil)))
}

func TestMapError(t *testing.T) {
	assert.Equal(t, "INVALID_TOKEN", string(mapError(domain.ErrInvalidSignature, "").Code))
	assert.Equal(t, "USER_NOT_FOUND", string(mapError(domain.ErrNotFound, "USER_NOT_FOUND").Code))
	assert.Equal(t, "NOT_FOUND", string(mapError(domain.ErrNotFound, "NOT_FOUND").Code))
	assert.Equal(t, "INTERNAL_ERROR", string(mapError(domain.ErrStoreWriteFailed, "").Code))
	assert.Equal(t, "INTERNAL_ERROR", string(mapError(errors.New("boom"), "").Code))
}
