// Package server is the composition root: it opens the store, picks the chat
// broker, builds services and handlers, and maps routes onto them.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlite.DB ─┬→ services → handlers → chi routes
//	               chat.Broker ┘
//
// Handlers never touch the database; services never touch HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/chat"
	"github.com/sakif/tabletop/internal/config"
	"github.com/sakif/tabletop/internal/handler"
	"github.com/sakif/tabletop/internal/metrics"
	"github.com/sakif/tabletop/internal/middleware"
	sqliteRepo "github.com/sakif/tabletop/internal/repository/sqlite"
	"github.com/sakif/tabletop/internal/service"
)

const (
	shutdownTimeout = 30 * time.Second
	healthTimeout   = 2 * time.Second
)

// Server owns the database and the chat broker; both are released by Close.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	broker chat.Broker
	tokens *auth.TokenService

	brokerOnce sync.Once
	brokerErr  error
}

// New opens the database (running migrations), connects the chat broker and
// sets up every route.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	db, err := sqliteRepo.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	broker, err := newBroker(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting chat broker: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		broker: broker,
		tokens: tokens,
	}
	s.setupRoutes()
	return s, nil
}

// newBroker returns the Redis broker when REDIS_ADDR is set and the
// in-process hub otherwise.
func newBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (chat.Broker, error) {
	if cfg.RedisAddr == "" {
		logger.Info("chat broker: in-process hub")
		return chat.NewHub(logger), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("chat broker: redis", slog.String("addr", cfg.RedisAddr))
	return chat.NewRedisBroker(client, logger), nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// MIDDLEWARE ORDER:
//  1. RequestID, RealIP
//  2. Logger, Metrics (outside Recoverer so a panic is logged and counted as a 500)
//  3. Recoverer
//
// Public API routes run under OptionalAuth so signed-in callers still get
// personalised responses; the rest run under RequireAuth and answer 401
// without a valid session cookie.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)

	opts := []service.Option{service.WithStorageTimeout(s.config.StorageTimeout)}
	db := s.db

	ratingService := service.NewRatingService(db, s.logger, opts...)
	collectionService := service.NewCollectionService(db, db, s.logger, opts...)
	catalogService := service.NewCatalogService(db, db, db, s.logger, opts...)
	userService := service.NewUserService(db, db, db, s.logger, opts...)
	groupService := service.NewGroupService(db, db, db, s.logger, opts...)
	chatService := service.NewChatService(db, db, s.broker, s.logger, opts...)
	authService := service.NewAuthService(db, s.tokens, s.logger, opts...)

	var google *auth.GoogleProvider
	if s.config.GoogleEnabled() {
		google = auth.NewGoogleProvider(s.config.GoogleClientID, s.config.GoogleClientSecret, s.config.GoogleCallbackURL)
	} else {
		s.logger.Warn("GOOGLE_CLIENT_ID not set, sign-in is disabled")
	}

	authHandler := handler.NewAuthHandler(google, authService, userService, handler.AuthOptions{
		FrontendURL:   s.config.FrontendURL,
		TokenTTL:      s.tokens.TTL(),
		SecureCookies: s.config.SecureCookies(),
	}, s.logger)
	gameHandler := handler.NewGameHandler(catalogService, ratingService, s.logger)
	collectionHandler := handler.NewCollectionHandler(collectionService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	groupHandler := handler.NewGroupHandler(groupService, s.logger)
	chatHandler := handler.NewChatHandler(chatService, 0, s.logger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.HandleGoogleLogin)
		r.Get("/google/callback", authHandler.HandleGoogleCallback)
		r.Post("/logout", authHandler.HandleLogout)
		r.With(auth.OptionalAuth(s.tokens)).Get("/status", authHandler.HandleStatus)
	})

	r.Route("/api", func(r chi.Router) {
		// === Public ===
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(s.tokens))

			r.Get("/games/top", gameHandler.HandleTop)
			r.Get("/games/ranking", gameHandler.HandleRanking)
			r.Get("/games/search", gameHandler.HandleSearch)
			r.Get("/games/{id}", gameHandler.HandleGet)
			r.Get("/games/{id}/rating", gameHandler.HandleAggregate)
			r.Get("/categories", gameHandler.HandleCategories)
			r.Get("/categories/{category}/games", gameHandler.HandleByCategory)

			r.Get("/users/search", userHandler.HandleSearch)
			r.Get("/users/{id}", userHandler.HandleProfile)
			r.Get("/users/{id}/collections/{collection}", collectionHandler.HandleUserCollection)
			r.Get("/users/{id}/friends", collectionHandler.HandleUserFriends)

			r.Get("/groups/{id}", groupHandler.HandleDetails)
			r.Get("/events/{id}/votes", groupHandler.HandleVotes)
		})

		// === Signed in ===
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.tokens))

			r.Get("/me", userHandler.HandleMe)
			r.Get("/me/groups", userHandler.HandleMyGroups)
			r.Get("/me/shelf", collectionHandler.HandleShelf)
			r.Get("/me/friends", collectionHandler.HandleMyFriends)
			r.Get("/me/collections/{collection}", collectionHandler.HandleMine)
			r.Post("/me/collections/{collection}", collectionHandler.HandleAdd)
			r.Get("/me/collections/{collection}/{id}", collectionHandler.HandleIsMember)
			r.Delete("/me/collections/{collection}/{id}", collectionHandler.HandleRemove)

			r.Put("/games/{id}/rating", gameHandler.HandleSubmitRating)
			r.Delete("/games/{id}/rating", gameHandler.HandleRemoveRating)
			r.Get("/games/{id}/rating/me", gameHandler.HandleMyRating)

			r.Get("/users/{id}/eligible-groups", userHandler.HandleEligibleGroups)

			r.Post("/groups", groupHandler.HandleCreate)
			r.Delete("/groups/{id}", groupHandler.HandleDelete)
			r.Post("/groups/{id}/members", groupHandler.HandleAddMember)
			r.Delete("/groups/{id}/members/{userID}", groupHandler.HandleRemoveMember)
			r.Get("/groups/{id}/events", groupHandler.HandleEvents)
			r.Post("/groups/{id}/events", groupHandler.HandleCreateEvent)
			r.Post("/events/{id}/votes", groupHandler.HandleToggleVote)

			r.Get("/groups/{id}/messages", chatHandler.HandleHistory)
			r.Post("/groups/{id}/messages", chatHandler.HandleSend)
			r.Get("/groups/{id}/messages/stream", chatHandler.HandleStream)
		})
	})

	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// handleHealth answers 200 when the database responds within healthTimeout.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}` + "\n"))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

// Close releases the broker and the database.
func (s *Server) Close() error {
	return errors.Join(s.closeBroker(), s.db.Close())
}

func (s *Server) closeBroker() error {
	s.brokerOnce.Do(func() { s.brokerErr = s.broker.Close() })
	return s.brokerErr
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the broker and the database.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second, // chat streams lift this per request
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Closing the broker first ends open chat streams so Shutdown does
		// not wait on them.
		if err := s.closeBroker(); err != nil {
			s.logger.Warn("closing chat broker", slog.String("error", err.Error()))
		}
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
