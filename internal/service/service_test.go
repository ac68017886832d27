package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/chat"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository/sqlite"
)

// =========================================================================
// FIXTURES
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// env wires every service to one real SQLite database.
type env struct {
	db          *sqlite.DB
	ratings     *RatingService
	collections *CollectionService
	catalog     *CatalogService
	users       *UserService
	groups      *GroupService
	chat        *ChatService
	hub         *chat.Hub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return wire(t, db)
}

// newFileEnv is for concurrency tests; an in-memory database allows only
// one connection.
func newFileEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "tabletop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return wire(t, db)
}

func wire(t *testing.T, db *sqlite.DB) *env {
	t.Helper()
	logger := discardLogger()
	hub := chat.NewHub(logger)
	t.Cleanup(func() { hub.Close() })
	return &env{
		db:          db,
		ratings:     NewRatingService(db, logger),
		collections: NewCollectionService(db, db, logger),
		catalog:     NewCatalogService(db, db, db, logger),
		users:       NewUserService(db, db, db, logger),
		groups:      NewGroupService(db, db, db, logger),
		chat:        NewChatService(db, db, hub, logger),
		hub:         hub,
	}
}

func (e *env) user(t *testing.T, name string) auth.Principal {
	t.Helper()
	u := &model.User{GoogleID: "google-" + name, Email: name + "@example.com", Username: name}
	require.NoError(t, e.db.UpsertGoogleUser(context.Background(), u))
	return auth.Principal{UserID: u.ID}
}

func (e *env) game(t *testing.T, name string, categories ...string) int64 {
	t.Helper()
	g := &model.Game{Name: name, Categories: categories, MinPlayers: 1, MaxPlayers: 4}
	require.NoError(t, e.catalog.Create(context.Background(), g))
	return g.ID
}

// =========================================================================
// STORAGE CALL TESTS
// =========================================================================

func TestCall_TimeoutBecomesStorageError(t *testing.T) {
	st := newStore(discardLogger(), []Option{WithStorageTimeout(20 * time.Millisecond)})

	start := time.Now()
	_, err := call(context.Background(), st, "test.slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, fmt.Errorf("sqlite: slow query: %w", ctx.Err())
	})

	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, apperror.ErrStorage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCall_KeepsCategorisedErrors(t *testing.T) {
	st := newStore(discardLogger(), nil)

	_, err := call(context.Background(), st, "test.notfound", func(ctx context.Context) (int, error) {
		return 0, apperror.NotFound("game", 9)
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NotErrorIs(t, err, apperror.ErrStorage)
}

func TestCall_DriverErrorBecomesStorageError(t *testing.T) {
	st := newStore(discardLogger(), nil)
	driverErr := errors.New("database disk image is malformed")

	v, err := call(context.Background(), st, "test.broken", func(ctx context.Context) (int, error) {
		return 42, driverErr
	})
	assert.Zero(t, v)
	assert.ErrorIs(t, err, apperror.ErrStorage)
	assert.ErrorIs(t, err, driverErr)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "test.broken: storage unavailable", appErr.Message)
}

func TestWithStorageTimeout_IgnoresNonPositive(t *testing.T) {
	st := newStore(nil, []Option{WithStorageTimeout(0), WithStorageTimeout(-time.Second)})
	assert.Equal(t, DefaultStorageTimeout, st.timeout)
	assert.NotNil(t, st.logger)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 5, clampLimit(0, 5, 500))
	assert.Equal(t, 5, clampLimit(-3, 5, 500))
	assert.Equal(t, 42, clampLimit(42, 5, 500))
	assert.Equal(t, 500, clampLimit(10_000, 5, 500))
}
