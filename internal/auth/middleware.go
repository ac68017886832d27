package auth

import (
	"net/http"
)

// CookieName is the HttpOnly cookie that carries the session JWT.
const CookieName = "token"

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the JWT from the session cookie, validates it, and stores the
// Principal in the request context. If the token is missing or invalid it
// answers 401 with the same JSON error shape the handlers use and stops the
// chain.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := principalFromRequest(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"authentication required"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuth extracts the Principal when a valid token is present but
// never blocks the request.
//
// Public routes such as GET /api/games/{id} use it so signed-in users also
// see their own rating and collection flags.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, err := principalFromRequest(r, tokens); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// principalFromRequest reads the session cookie and validates it.
// http.ErrNoCookie just means the request is anonymous.
func principalFromRequest(r *http.Request, tokens *TokenService) (Principal, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Principal{}, err
	}
	return tokens.Validate(cookie.Value)
}
