package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

// AuthService handles the sign-in business logic.
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//
// It does not set cookies or read requests; that is the handler's job.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	store  store
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger, opts ...Option) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		store:  newStore(logger, opts),
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginWithGoogle upserts the user keyed by the Google subject and issues a
// session token.
//
// The first sign-in creates the account with the Google display name as the
// username (falling back to the local part of the email). Later sign-ins
// refresh email and picture only, so a username stays stable.
func (s *AuthService) LoginWithGoogle(ctx context.Context, gu *auth.GoogleUser) (*AuthResult, error) {
	if gu == nil || gu.Sub == "" {
		return nil, apperror.ValidationFailed("sub", "Google profile has no subject")
	}

	user := &model.User{
		GoogleID:        gu.Sub,
		Email:           gu.Email,
		Username:        usernameFor(gu),
		ProfileImageURL: gu.Picture,
	}
	if err := run(ctx, s.store, "user.upsert", func(ctx context.Context) error {
		return s.users.UpsertGoogleUser(ctx, user)
	}); err != nil {
		return nil, err
	}

	s.store.logger.Info("user authenticated via Google",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, Token: token}, nil
}

// ValidateToken returns the Principal a session token was issued to.
func (s *AuthService) ValidateToken(token string) (auth.Principal, error) {
	p, err := s.tokens.Validate(token)
	if err != nil {
		return auth.Principal{}, apperror.Unauthorized()
	}
	return p, nil
}

func usernameFor(gu *auth.GoogleUser) string {
	if name := strings.TrimSpace(gu.Name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(gu.Email, "@"); ok && local != "" {
		return local
	}
	return "player-" + gu.Sub
}
