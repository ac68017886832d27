package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

const (
	DefaultTopLimit     = 5
	DefaultRankingLimit = 100
	MaxRankingLimit     = 500
)

// RatingService owns per-user ratings and the per-game running aggregate.
//
// The aggregate is kept as (total, count) on the game row and adjusted in the
// same transaction as the rating itself; the average is always derived.
type RatingService struct {
	repo  repository.RatingRepository
	store store
}

func NewRatingService(repo repository.RatingRepository, logger *slog.Logger, opts ...Option) *RatingService {
	return &RatingService{repo: repo, store: newStore(logger, opts)}
}

// Submit records p's rating for gameID, replacing any earlier one, and
// returns the game's aggregate after the change.
func (s *RatingService) Submit(ctx context.Context, p auth.Principal, gameID int64, rating int) (model.Aggregate, error) {
	if err := requirePrincipal(p); err != nil {
		return model.Aggregate{}, err
	}
	if err := requireID("gameId", gameID); err != nil {
		return model.Aggregate{}, err
	}
	if rating < model.MinRating || rating > model.MaxRating {
		return model.Aggregate{}, apperror.ValidationFailed("rating",
			fmt.Sprintf("rating must be between %d and %d", model.MinRating, model.MaxRating))
	}

	agg, err := call(ctx, s.store, "rating.submit", func(ctx context.Context) (model.Aggregate, error) {
		return s.repo.SubmitRating(ctx, p.UserID, gameID, rating)
	})
	if err != nil {
		return model.Aggregate{}, err
	}

	s.store.logger.Info("rating submitted",
		slog.Int64("userID", p.UserID),
		slog.Int64("gameID", gameID),
		slog.Int("rating", rating),
		slog.Float64("average", agg.Average),
	)
	return agg, nil
}

// Remove deletes p's rating for gameID. Removing a rating that does not
// exist succeeds and leaves the aggregate untouched.
func (s *RatingService) Remove(ctx context.Context, p auth.Principal, gameID int64) (model.Aggregate, error) {
	if err := requirePrincipal(p); err != nil {
		return model.Aggregate{}, err
	}
	if err := requireID("gameId", gameID); err != nil {
		return model.Aggregate{}, err
	}

	agg, err := call(ctx, s.store, "rating.remove", func(ctx context.Context) (model.Aggregate, error) {
		return s.repo.RemoveRating(ctx, p.UserID, gameID)
	})
	if err != nil {
		return model.Aggregate{}, err
	}

	s.store.logger.Info("rating removed",
		slog.Int64("userID", p.UserID),
		slog.Int64("gameID", gameID),
	)
	return agg, nil
}

// UserRating returns p's rating for gameID. Rated is false when p has not
// rated the game.
func (s *RatingService) UserRating(ctx context.Context, p auth.Principal, gameID int64) (model.UserRating, error) {
	if err := requirePrincipal(p); err != nil {
		return model.UserRating{}, err
	}
	if err := requireID("gameId", gameID); err != nil {
		return model.UserRating{}, err
	}
	return call(ctx, s.store, "rating.user", func(ctx context.Context) (model.UserRating, error) {
		return s.repo.UserRating(ctx, p.UserID, gameID)
	})
}

func (s *RatingService) Aggregate(ctx context.Context, gameID int64) (model.Aggregate, error) {
	if err := requireID("gameId", gameID); err != nil {
		return model.Aggregate{}, err
	}
	return call(ctx, s.store, "rating.aggregate", func(ctx context.Context) (model.Aggregate, error) {
		return s.repo.Aggregate(ctx, gameID)
	})
}

// Top returns the best rated games, DefaultTopLimit when limit <= 0.
func (s *RatingService) Top(ctx context.Context, limit int) ([]model.Game, error) {
	return s.rank(ctx, "rating.top", clampLimit(limit, DefaultTopLimit, MaxRankingLimit))
}

// Ranking is Top with a larger default page.
func (s *RatingService) Ranking(ctx context.Context, limit int) ([]model.Game, error) {
	return s.rank(ctx, "rating.ranking", clampLimit(limit, DefaultRankingLimit, MaxRankingLimit))
}

func (s *RatingService) rank(ctx context.Context, op string, limit int) ([]model.Game, error) {
	return call(ctx, s.store, op, func(ctx context.Context) ([]model.Game, error) {
		return s.repo.RankGames(ctx, limit)
	})
}
