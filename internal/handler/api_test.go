package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/chat"
	"github.com/sakif/tabletop/internal/handler"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository/sqlite"
	"github.com/sakif/tabletop/internal/service"
)

// =========================================================================
// FIXTURE
// =========================================================================
//
// api wires real services over an in-memory SQLite database and mounts the
// handlers on a chi router. Every route runs under OptionalAuth; the
// handlers and services must reject anonymous callers on their own.

const testSecret = "handler-test-secret-0123456789"

type api struct {
	db     *sqlite.DB
	tokens *auth.TokenService
	hub    *chat.Hub
	router chi.Router
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := discardLogger()

	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	hub := chat.NewHub(logger)
	t.Cleanup(func() { hub.Close() })

	ratings := service.NewRatingService(db, logger)
	collections := service.NewCollectionService(db, db, logger)
	catalog := service.NewCatalogService(db, db, db, logger)
	users := service.NewUserService(db, db, db, logger)
	groups := service.NewGroupService(db, db, db, logger)
	chats := service.NewChatService(db, db, hub, logger)

	games := handler.NewGameHandler(catalog, ratings, logger)
	colls := handler.NewCollectionHandler(collections, logger)
	us := handler.NewUserHandler(users, logger)
	gs := handler.NewGroupHandler(groups, logger)
	cs := handler.NewChatHandler(chats, 50*time.Millisecond, logger)

	r := chi.NewRouter()
	r.Use(auth.OptionalAuth(tokens))

	r.Get("/api/games/top", games.HandleTop)
	r.Get("/api/games/ranking", games.HandleRanking)
	r.Get("/api/games/search", games.HandleSearch)
	r.Get("/api/games/{id}", games.HandleGet)
	r.Get("/api/games/{id}/rating", games.HandleAggregate)
	r.Put("/api/games/{id}/rating", games.HandleSubmitRating)
	r.Delete("/api/games/{id}/rating", games.HandleRemoveRating)
	r.Get("/api/games/{id}/rating/me", games.HandleMyRating)
	r.Get("/api/categories", games.HandleCategories)
	r.Get("/api/categories/{category}/games", games.HandleByCategory)

	r.Get("/api/me", us.HandleMe)
	r.Get("/api/me/groups", us.HandleMyGroups)
	r.Get("/api/me/shelf", colls.HandleShelf)
	r.Get("/api/me/friends", colls.HandleMyFriends)
	r.Get("/api/me/collections/{collection}", colls.HandleMine)
	r.Post("/api/me/collections/{collection}", colls.HandleAdd)
	r.Get("/api/me/collections/{collection}/{id}", colls.HandleIsMember)
	r.Delete("/api/me/collections/{collection}/{id}", colls.HandleRemove)

	r.Get("/api/users/search", us.HandleSearch)
	r.Get("/api/users/{id}", us.HandleProfile)
	r.Get("/api/users/{id}/eligible-groups", us.HandleEligibleGroups)
	r.Get("/api/users/{id}/collections/{collection}", colls.HandleUserCollection)
	r.Get("/api/users/{id}/friends", colls.HandleUserFriends)

	r.Post("/api/groups", gs.HandleCreate)
	r.Get("/api/groups/{id}", gs.HandleDetails)
	r.Delete("/api/groups/{id}", gs.HandleDelete)
	r.Post("/api/groups/{id}/members", gs.HandleAddMember)
	r.Delete("/api/groups/{id}/members/{userID}", gs.HandleRemoveMember)
	r.Get("/api/groups/{id}/events", gs.HandleEvents)
	r.Post("/api/groups/{id}/events", gs.HandleCreateEvent)
	r.Post("/api/events/{id}/votes", gs.HandleToggleVote)
	r.Get("/api/events/{id}/votes", gs.HandleVotes)

	r.Get("/api/groups/{id}/messages", cs.HandleHistory)
	r.Post("/api/groups/{id}/messages", cs.HandleSend)
	r.Get("/api/groups/{id}/messages/stream", cs.HandleStream)

	return &api{db: db, tokens: tokens, hub: hub, router: r}
}

// user creates an account and returns its id and a session cookie.
func (a *api) user(t *testing.T, name string) (int64, *http.Cookie) {
	t.Helper()
	u := &model.User{GoogleID: "google-" + name, Email: name + "@example.com", Username: name}
	require.NoError(t, a.db.UpsertGoogleUser(context.Background(), u))

	token, err := a.tokens.Generate(u.ID)
	require.NoError(t, err)
	return u.ID, &http.Cookie{Name: auth.CookieName, Value: token}
}

func (a *api) game(t *testing.T, name string, categories ...string) int64 {
	t.Helper()
	g := &model.Game{Name: name, Categories: categories, MinPlayers: 2, MaxPlayers: 4}
	require.NoError(t, a.db.CreateGame(context.Background(), g))
	return g.ID
}

// do sends a request through the router. cookie may be nil.
func (a *api) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// requireError checks both the status and the machine-readable code.
func requireError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) errorBody {
	t.Helper()
	require.Equal(t, status, rr.Code, "body: %s", rr.Body.String())
	body := decode[errorBody](t, rr)
	require.Equal(t, code, body.Error)
	return body
}
