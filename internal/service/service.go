// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take the caller as an explicit auth.Principal rather than reading
// it from the request, so the same rules apply to HTTP handlers, the seed
// CLI and tests.
//
// STORAGE CALLS:
// Every repository call goes through call/run below. They
//   - bound the call with the configured storage timeout,
//   - record the outcome in the store metrics,
//   - turn any failure that is not already an *apperror.AppError (driver
//     errors, deadline exceeded, commit failures) into apperror.Storage.
//
// Repositories run each read-modify-write in a single transaction, so a
// timeout mid-way rolls the whole sequence back.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/metrics"
)

// DefaultStorageTimeout bounds each repository call when no option is given.
const DefaultStorageTimeout = 5 * time.Second

// Option configures a service.
type Option func(*store)

// WithStorageTimeout sets the per-call storage deadline. Non-positive
// values are ignored.
func WithStorageTimeout(d time.Duration) Option {
	return func(s *store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// store carries what every service needs to talk to a repository.
type store struct {
	timeout time.Duration
	logger  *slog.Logger
}

func newStore(logger *slog.Logger, opts []Option) store {
	if logger == nil {
		logger = slog.Default()
	}
	s := store{timeout: DefaultStorageTimeout, logger: logger}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// call runs fn under the storage timeout and categorises its error.
func call[T any](ctx context.Context, s store, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	v, err := fn(ctx)
	metrics.RecordStoreOperation(op, time.Since(start), err)

	if err == nil {
		return v, nil
	}
	if apperror.IsApp(err) {
		return v, err
	}

	s.logger.Error("storage operation failed",
		slog.String("op", op),
		slog.Duration("timeout", s.timeout),
		slog.Any("error", err),
	)
	var zero T
	return zero, apperror.Storage(op, err)
}

// run is call for operations without a result.
func run(ctx context.Context, s store, op string, fn func(context.Context) error) error {
	_, err := call(ctx, s, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func requirePrincipal(p auth.Principal) error {
	if !p.Valid() {
		return apperror.Unauthorized()
	}
	return nil
}

func requireID(field string, id int64) error {
	if id <= 0 {
		return apperror.ValidationFailed(field, field+" must be a positive integer")
	}
	return nil
}

// clampLimit applies def to non-positive limits and caps at max.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
