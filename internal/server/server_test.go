package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/chat"
	"github.com/sakif/tabletop/internal/config"
	"github.com/sakif/tabletop/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:           8080,
		DBPath:         ":memory:",
		JWTSecret:      "server-test-secret-0123456789",
		TokenTTL:       time.Hour,
		FrontendURL:    "/",
		StorageTimeout: time.Second,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func get(t *testing.T, s *Server, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := get(t, s, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHealthz_DatabaseClosed(t *testing.T) {
	s := newTestServer(t, testConfig())
	require.NoError(t, s.db.Close())

	rr := get(t, s, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rr.Body.String())
}

func TestRoutes_PublicAndProtected(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := get(t, s, "/api/games/top", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	for _, path := range []string{"/api/me", "/api/me/shelf", "/api/games/1/rating/me", "/api/groups/1/messages"} {
		rr := get(t, s, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}

	rr = get(t, s, "/auth/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rr.Body.String())

	rr = get(t, s, "/auth/google/login", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "sign-in is off without Google credentials")
}

func TestRoutes_SignedInRating(t *testing.T) {
	s := newTestServer(t, testConfig())
	ctx := context.Background()

	u := &model.User{GoogleID: "g-1", Email: "ada@example.com", Username: "ada"}
	require.NoError(t, s.db.UpsertGoogleUser(ctx, u))
	game := &model.Game{Name: "Azul", MinPlayers: 2, MaxPlayers: 4}
	require.NoError(t, s.db.CreateGame(ctx, game))

	token, err := s.tokens.Generate(u.ID)
	require.NoError(t, err)
	cookie := &http.Cookie{Name: auth.CookieName, Value: token}

	req := httptest.NewRequest(http.MethodPut, "/api/games/"+itoa(game.ID)+"/rating", strings.NewReader(`{"rating":8}`))
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = get(t, s, "/api/games/"+itoa(game.ID)+"/rating/me", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"gameId":`+itoa(game.ID)+`,"rating":8}`, rr.Body.String())

	rr = get(t, s, "/api/games/top", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"Azul"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	// One request through the router so the HTTP series exist.
	get(t, s, "/api/games/top", nil)

	rr := get(t, s, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "tabletop_http_requests_total")
	assert.Contains(t, rr.Body.String(), `route="/api/games/top"`)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>tabletop</h1>"), 0o644))

	cfg := testConfig()
	cfg.StaticDir = dir
	s := newTestServer(t, cfg)

	rr := get(t, s, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "tabletop")

	// API routes still win over the file server.
	rr = get(t, s, "/api/games/top", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestNew_RedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()

	s := newTestServer(t, cfg)
	_, ok := s.broker.(*chat.RedisBroker)
	assert.True(t, ok, "REDIS_ADDR selects the Redis broker")

	cfg = testConfig()
	s = newTestServer(t, cfg)
	_, ok = s.broker.(*chat.Hub)
	assert.True(t, ok, "the in-process hub is the default")
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.RedisAddr = addr
	cfg.StorageTimeout = 200 * time.Millisecond

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat broker")
}

func TestNew_RejectsShortSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = "short"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()

	s, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.closeBroker())
	assert.NoError(t, s.closeBroker(), "the broker is closed once")
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
