package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/service"
)

const stateCookieName = "oauth_state"

// AuthOptions carries the cookie and redirect settings of the login flow.
type AuthOptions struct {
	// FrontendURL is where the browser lands after login; "/" when empty.
	FrontendURL string
	// TokenTTL is the session cookie lifetime. It should match the JWT expiry.
	TokenTTL time.Duration
	// SecureCookies marks cookies Secure (HTTPS only).
	SecureCookies bool
}

// AuthHandler manages the Google OAuth login flow and the session cookie.
//
//   - HandleGoogleLogin    → redirect the browser to Google's consent page
//   - HandleGoogleCallback → exchange the code, upsert the user, set the JWT cookie
//   - HandleLogout         → clear the JWT cookie
//   - HandleStatus         → report whether the caller is signed in
//
// google may be nil when no client credentials are configured; the login
// routes then answer 503.
type AuthHandler struct {
	google *auth.GoogleProvider
	auth   *service.AuthService
	users  *service.UserService
	opts   AuthOptions
	logger *slog.Logger
}

func NewAuthHandler(
	google *auth.GoogleProvider,
	authService *service.AuthService,
	users *service.UserService,
	opts AuthOptions,
	logger *slog.Logger,
) *AuthHandler {
	if opts.FrontendURL == "" {
		opts.FrontendURL = "/"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = auth.DefaultTokenTTL
	}
	return &AuthHandler{
		google: google,
		auth:   authService,
		users:  users,
		opts:   opts,
		logger: logger,
	}
}

// HandleGoogleLogin redirects to Google with a random state value that is
// also kept in a short-lived cookie; the callback compares the two.
//
// HTTP: GET /auth/google/login
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeAuthUnavailable(w)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the login.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the Google profile
//  3. Upsert the user and issue a JWT
//  4. Store the JWT in an HttpOnly cookie and redirect to the frontend
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeAuthUnavailable(w)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("error", errParam),
		)
		http.Redirect(w, r, h.opts.FrontendURL+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	gu, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Google exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	result, err := h.auth.LoginWithGoogle(r.Context(), gu)
	if err != nil {
		h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, result.Token, int(h.opts.TokenTTL.Seconds()))
	http.Redirect(w, r, h.opts.FrontendURL, http.StatusSeeOther)
}

// HandleLogout clears the JWT cookie. The token itself stays valid until it
// expires; without the cookie the browser no longer sends it.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type statusResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user,omitempty"`
}

// HandleStatus reports the session state. It never fails with 401: an
// anonymous caller, or one whose account no longer exists, is simply not
// authenticated.
//
// HTTP: GET /auth/status (OptionalAuth)
func (h *AuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.Valid() {
		writeJSON(w, http.StatusOK, statusResponse{})
		return
	}

	user, err := h.users.Me(r.Context(), p)
	if errors.Is(err, apperror.ErrNotFound) {
		writeJSON(w, http.StatusOK, statusResponse{})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Authenticated: true, User: user})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeAuthUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
		Error:   "auth_unavailable",
		Message: "Google sign-in is not configured",
	})
}
