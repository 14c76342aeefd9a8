package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/heartlink/onboardgate"
	"github.com/heartlink/onboardgate/backend/memory"
	"github.com/heartlink/onboardgate/metrics/export/prometheus"
)

type testServer struct {
	srv      *httptest.Server
	store    *memory.Store
	upstream chan http.Header
	logs     *observer.ObservedLogs
	revoker  *fakeRevoker
}

type fakeRevoker struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	users    map[string]time.Time
	err      error
}

func (f *fakeRevoker) Revoke(_ context.Context, sessionID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sessions[sessionID] = expiresAt
	return nil
}

func (f *fakeRevoker) RevokeAllForUser(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.users[userID] = at
	return nil
}

func (f *fakeRevoker) session(id string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.sessions[id]
	return at, ok
}

func (f *fakeRevoker) user(id string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.users[id]
	return at, ok
}

func (f *fakeRevoker) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func headerSessions(_ context.Context, r *http.Request) (*onboardgate.Session, error) {
	id := r.Header.Get("X-Test-User")
	if id == "" {
		return nil, nil
	}
	if r.Header.Get("X-Test-No-Session-Id") != "" {
		return &onboardgate.Session{UserID: id}, nil
	}
	return &onboardgate.Session{UserID: id, SessionID: "s-" + id, ExpiresAt: time.Unix(1900000000, 0)}, nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	seen := make(chan http.Header, 8)
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		_, _ = io.WriteString(w, "app:"+r.URL.Path)
	}))
	t.Cleanup(app.Close)
	upstream, err := url.Parse(app.URL)
	require.NoError(t, err)

	store := memory.New()
	store.Seed(onboardgate.RecordPhone, "done", map[string]any{"phone_number": "+447700900123"})
	store.Seed(onboardgate.RecordProfile, "done", map[string]any{"firstName": "Ada"})

	cfg := onboardgate.DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.RateLimit.Enabled = false

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	gate, err := onboardgate.New().
		WithConfig(cfg).
		WithBackend(onboardgate.Compose(onboardgate.SessionProviderFunc(headerSessions), store)).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })

	revoker := &fakeRevoker{sessions: map[string]time.Time{}, users: map[string]time.Time{}}
	srv := httptest.NewServer(NewRouter(Options{
		Gate:     gate,
		Upstream: upstream,
		Metrics:  prometheus.NewPrometheusExporter(gate).Handler(),
		Revoker:  revoker,
		Logger:   logger,
	}))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: store, upstream: seen, logs: logs, revoker: revoker}
}

func (ts *testServer) do(t *testing.T, method, path, userID, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthzSetsRequestID(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, OpsPrefix+"/healthz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp = ts.do(t, http.MethodGet, OpsPrefix+"/readyz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNavigationIsGated(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		userID   string
		location string
	}{
		{"anonymous", "/dashboard", "", "/sign-in"},
		{"no phone", "/matches", "fresh", "/verify"},
		{"onboarded on create", "/profile/create", "done", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodGet, tt.path, tt.userID, "")
			require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
			require.Equal(t, tt.location, resp.Header.Get("Location"))
		})
	}
}

func TestAllowedNavigationIsProxied(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/dashboard", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", "done")
	req.Header.Set(headerUserID, "spoofed")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "app:/dashboard", string(body))

	h := <-ts.upstream
	require.Equal(t, "done", h.Get(headerUserID))
	require.Equal(t, "onboarded", h.Get(headerOnboardingState))
	require.NotEmpty(t, h.Get("X-Request-Id"))
}

func TestPublicPageIsProxiedForAnonymous(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/about", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	h := <-ts.upstream
	require.Empty(t, h.Get(headerUserID))
}

func TestApplicationRoutesReachUpstream(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		method string
		path   string
		userID string
	}{
		{http.MethodGet, "/api/likes", ""},
		{http.MethodPost, "/api/likes", ""},
		{http.MethodGet, "/api", ""},
		{http.MethodGet, "/api/onboarding/other", ""},
		{http.MethodGet, "/trpc/feed", ""},
		{http.MethodGet, "/_next/static/x.js", ""},
		{http.MethodGet, "/healthz", "done"},
		{http.MethodGet, "/metrics", "done"},
	}
	for _, tt := range tests {
		t.Run(tt.method+tt.path, func(t *testing.T) {
			resp := ts.do(t, tt.method, tt.path, tt.userID, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, "app:"+tt.path, string(body))
			<-ts.upstream
		})
	}
}

func TestSignOut(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/onboarding/sign-out", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/onboarding/sign-out", "u1", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	exp, ok := ts.revoker.session("s-u1")
	require.True(t, ok)
	require.Equal(t, time.Unix(1900000000, 0), exp)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/onboarding/sign-out", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", "u2")
	req.Header.Set("X-Test-No-Session-Id", "1")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok = ts.revoker.user("u2")
	require.True(t, ok)

	ts.revoker.fail(fmt.Errorf("%w: connection refused", onboardgate.ErrSessionBackend))
	resp = ts.do(t, http.MethodPost, "/api/onboarding/sign-out", "u1", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "SESSION_BACKEND_UNAVAILABLE", decode[apiError](t, resp).Code)
}

func TestSignOutWithoutRevoker(t *testing.T) {
	gate, err := onboardgate.New().
		WithSessionProvider(onboardgate.SessionProviderFunc(headerSessions)).
		WithRecordStore(memory.New()).
		WithConfig(func() onboardgate.Config {
			cfg := onboardgate.DefaultConfig()
			cfg.Cache.Enabled = false
			cfg.RateLimit.Enabled = false
			return cfg
		}()).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })

	req := httptest.NewRequest(http.MethodPost, "/api/onboarding/sign-out", nil)
	req.Header.Set("X-Test-User", "u1")
	rec := httptest.NewRecorder()
	NewRouter(Options{Gate: gate}).ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCheckEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/onboarding/check?path=/dashboard", "fresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[map[string]any](t, resp)
	require.Equal(t, "redirect", got["action"])
	require.Equal(t, "/verify", got["target"])
	require.Equal(t, "phone_unverified", got["state"])
}

func TestRecordFlow(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/records/phone", "", `{"phone_number":"+447700900123"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/records/phone", "u1", `{"phone_number":"+44 7700 900123"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[createdResponse](t, resp)
	require.Equal(t, "/profile/create", created.Next)

	doc, ok := ts.store.Record(onboardgate.RecordPhone, "u1")
	require.True(t, ok)
	require.Equal(t, "+447700900123", doc["phone_number"])

	resp = ts.do(t, http.MethodGet, "/api/onboarding/state", "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[stateResponse](t, resp)
	require.Equal(t, "profile_incomplete", state.State)
	require.Equal(t, "/profile/create", state.Next)

	resp = ts.do(t, http.MethodPost, "/api/records/phone", "u1", `{"phone_number":"+447700900124"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "CONFLICT", decode[apiError](t, resp).Code)

	resp = ts.do(t, http.MethodGet, OpsPrefix+"/metrics", "", "")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "onboardgate_record_created_total 1")
	require.Contains(t, string(body), "onboardgate_record_duplicate_total 1")
}

func TestRecordErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"invalid phone", "/api/records/phone", `{"phone_number":"12"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not json", "/api/records/phone", `{`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty body", "/api/records/phone", ``, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"two values", "/api/records/phone", `{} {}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown kind", "/api/records/avatar", `{}`, http.StatusNotFound, "UNKNOWN_KIND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, tt.path, "u2", tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			body := decode[apiError](t, resp)
			require.Equal(t, "error", body.Status)
			require.Equal(t, tt.code, body.Code)
		})
	}

	resp := ts.do(t, http.MethodPost, "/api/records/phone", "u2", `{"phone_number":"12"}`)
	body := decode[apiError](t, resp)
	require.NotEmpty(t, body.Fields)
	require.Equal(t, "phone_number", body.Fields[0].Field)
}

func TestRecoverMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := recoverMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestAccessLogLevels(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodGet, OpsPrefix+"/healthz", "", "")
	ts.do(t, http.MethodPost, "/api/records/phone", "", `{}`)

	entries := ts.logs.FilterMessage("http request completed").All()
	require.Len(t, entries, 2)
	require.Equal(t, zap.InfoLevel, entries[0].Level)
	require.Equal(t, zap.WarnLevel, entries[1].Level)
	require.Equal(t, int64(http.StatusUnauthorized), entries[1].ContextMap()["status_code"])
}

func TestNoUpstream(t *testing.T) {
	h := NewRouter(Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, OpsPrefix+"/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
