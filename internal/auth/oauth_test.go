package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGoogle serves a token endpoint and a userinfo endpoint.
func fakeGoogle(t *testing.T, profile map[string]string, userInfoStatus int) *httptest.Server {
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
		w.WriteHeader(userInfoStatus)
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *GoogleProvider {
	return NewGoogleProvider("client-id", "client-secret", "http://localhost/auth/google/callback").
		WithEndpoints(oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}, srv.URL+"/userinfo")
}

func TestAuthURL_CarriesStateAndScopes(t *testing.T) {
	p := NewGoogleProvider("client-id", "secret", "http://localhost/cb")

	u, err := url.Parse(p.AuthURL("state-xyz"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)

	q := u.Query()
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
}

func TestExchange(t *testing.T) {
	srv := fakeGoogle(t, map[string]string{
		"sub":     "1098",
		"email":   "ada@example.com",
		"name":    "Ada",
		"picture": "https://example.com/ada.png",
	}, http.StatusOK)

	user, err := testProvider(srv).Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, &GoogleUser{Sub: "1098", Email: "ada@example.com", Name: "Ada", Picture: "https://example.com/ada.png"}, user)
}

func TestExchange_Failures(t *testing.T) {
	t.Run("bad code", func(t *testing.T) {
		srv := fakeGoogle(t, map[string]string{"sub": "1"}, http.StatusOK)
		_, err := testProvider(srv).Exchange(context.Background(), "bad-code")
		assert.ErrorContains(t, err, "exchanging OAuth code")
	})

	t.Run("userinfo error", func(t *testing.T) {
		srv := fakeGoogle(t, map[string]string{}, http.StatusInternalServerError)
		_, err := testProvider(srv).Exchange(context.Background(), "good-code")
		assert.ErrorContains(t, err, "status 500")
	})

	t.Run("missing subject", func(t *testing.T) {
		srv := fakeGoogle(t, map[string]string{"email": "x@example.com"}, http.StatusOK)
		_, err := testProvider(srv).Exchange(context.Background(), "good-code")
		assert.ErrorContains(t, err, "without a subject")
	})
}
