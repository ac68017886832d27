package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/handler"
	"github.com/sakif/tabletop/internal/service"
)

// fakeGoogle answers the token exchange for "good-code" and returns a fixed
// profile from userinfo.
func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"sub":   "g-42",
			"email": "ada@example.com",
			"name":  "Ada Lovelace",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type authFixture struct {
	*api
	router chi.Router
}

func newAuthFixture(t *testing.T, withGoogle bool) *authFixture {
	t.Helper()
	a := newAPI(t)
	logger := discardLogger()

	var google *auth.GoogleProvider
	if withGoogle {
		srv := fakeGoogle(t)
		google = auth.NewGoogleProvider("client-id", "client-secret", "http://localhost/auth/google/callback").
			WithEndpoints(oauth2.Endpoint{
				AuthURL:   srv.URL + "/auth",
				TokenURL:  srv.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			}, srv.URL+"/userinfo")
	}

	h := handler.NewAuthHandler(google,
		service.NewAuthService(a.db, a.tokens, logger),
		service.NewUserService(a.db, a.db, a.db, logger),
		handler.AuthOptions{FrontendURL: "http://app.example", TokenTTL: 2 * time.Hour},
		logger,
	)

	r := chi.NewRouter()
	r.Get("/auth/google/login", h.HandleGoogleLogin)
	r.Get("/auth/google/callback", h.HandleGoogleCallback)
	r.Post("/auth/logout", h.HandleLogout)
	r.With(auth.OptionalAuth(a.tokens)).Get("/auth/status", h.HandleStatus)

	return &authFixture{api: a, router: r}
}

func (f *authFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuth_LoginRedirectsWithState(t *testing.T) {
	f := newAuthFixture(t, true)

	rr := f.serve(httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)

	state := cookieNamed(rr, "oauth_state")
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, 600, state.MaxAge)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
	assert.Equal(t, "client-id", loc.Query().Get("client_id"))
}

func TestAuth_CallbackSignsIn(t *testing.T) {
	f := newAuthFixture(t, true)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=s1&code=good-code", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s1"})
	rr := f.serve(req)

	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	assert.Equal(t, "http://app.example", rr.Header().Get("Location"))

	session := cookieNamed(rr, auth.CookieName)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, int((2 * time.Hour).Seconds()), session.MaxAge)

	p, err := f.tokens.Validate(session.Value)
	require.NoError(t, err)

	// The session cookie now authenticates the status endpoint.
	status := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	status.AddCookie(session)
	rr = f.serve(status)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Authenticated bool `json:"authenticated"`
		User          struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
			Email    string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.True(t, body.Authenticated)
	assert.Equal(t, p.UserID, body.User.ID)
	assert.Equal(t, "Ada Lovelace", body.User.Username)
	assert.Equal(t, "ada@example.com", body.User.Email)
}

func TestAuth_CallbackRejects(t *testing.T) {
	f := newAuthFixture(t, true)

	tests := []struct {
		name     string
		query    string
		cookie   string
		status   int
		location string
	}{
		{name: "no state cookie", query: "state=s1&code=good-code", status: http.StatusBadRequest},
		{name: "state mismatch", query: "state=other&code=good-code", cookie: "s1", status: http.StatusBadRequest},
		{name: "missing code", query: "state=s1", cookie: "s1", status: http.StatusBadRequest},
		{name: "bad code", query: "state=s1&code=bad-code", cookie: "s1", status: http.StatusBadGateway},
		{name: "user denied", query: "state=s1&error=access_denied", cookie: "s1", status: http.StatusSeeOther, location: "http://app.example?auth=denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: tt.cookie})
			}
			rr := f.serve(req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, rr.Header().Get("Location"))
			}
			assert.Nil(t, cookieNamed(rr, auth.CookieName), "no session is issued")
		})
	}
}

func TestAuth_DisabledWithoutGoogle(t *testing.T) {
	f := newAuthFixture(t, false)

	for _, path := range []string{"/auth/google/login", "/auth/google/callback?state=s&code=c"} {
		rr := f.serve(httptest.NewRequest(http.MethodGet, path, nil))
		requireError(t, rr, http.StatusServiceUnavailable, "auth_unavailable")
	}
}

func TestAuth_LogoutClearsCookie(t *testing.T) {
	f := newAuthFixture(t, true)

	rr := f.serve(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"logged out"}`, rr.Body.String())

	session := cookieNamed(rr, auth.CookieName)
	require.NotNil(t, session)
	assert.Empty(t, session.Value)
	assert.Less(t, session.MaxAge, 0)
}

func TestAuth_StatusAnonymous(t *testing.T) {
	f := newAuthFixture(t, true)

	rr := f.serve(httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rr.Body.String())

	// A valid token for an account that no longer exists is just anonymous.
	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	token, err := f.tokens.Generate(999)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	rr = f.serve(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rr.Body.String())
}
