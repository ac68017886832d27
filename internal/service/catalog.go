package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

const (
	MaxSearchResults    = 100
	MaxGameNameLength   = 200
	DefaultCategoryPage = 100
)

// CatalogService serves game lookups, search and categories, and admits new
// games into the catalogue.
type CatalogService struct {
	games       repository.GameRepository
	ratings     repository.RatingRepository
	collections repository.CollectionRepository
	store       store
}

func NewCatalogService(
	games repository.GameRepository,
	ratings repository.RatingRepository,
	collections repository.CollectionRepository,
	logger *slog.Logger,
	opts ...Option,
) *CatalogService {
	return &CatalogService{
		games:       games,
		ratings:     ratings,
		collections: collections,
		store:       newStore(logger, opts),
	}
}

// Game returns the game page. For a signed-in viewer the page also says
// which of the viewer's collections contain the game and the viewer's own
// rating; pass the zero Principal for anonymous viewers.
func (s *CatalogService) Game(ctx context.Context, viewer auth.Principal, id int64) (*model.GameDetails, error) {
	if err := requireID("id", id); err != nil {
		return nil, err
	}

	game, err := call(ctx, s.store, "catalog.game", func(ctx context.Context) (*model.Game, error) {
		return s.games.GetGame(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	details := &model.GameDetails{Game: *game}
	if !viewer.Valid() {
		return details, nil
	}

	for _, flag := range []struct {
		c    model.Collection
		dest *bool
	}{
		{model.CollectionOwned, &details.InOwned},
		{model.CollectionWishlist, &details.InWishlist},
		{model.CollectionFavorites, &details.InFavorites},
	} {
		in, err := call(ctx, s.store, "collection.is_member", func(ctx context.Context) (bool, error) {
			return s.collections.IsMember(ctx, viewer.UserID, flag.c, id)
		})
		if err != nil {
			return nil, err
		}
		*flag.dest = in
	}

	rating, err := call(ctx, s.store, "rating.user", func(ctx context.Context) (model.UserRating, error) {
		return s.ratings.UserRating(ctx, viewer.UserID, id)
	})
	if err != nil {
		return nil, err
	}
	details.UserRating = &rating

	return details, nil
}

// Search matches query case-insensitively anywhere in the game name.
// A blank query returns no games rather than the whole catalogue.
func (s *CatalogService) Search(ctx context.Context, query string) ([]model.Game, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Game{}, nil
	}
	return call(ctx, s.store, "catalog.search", func(ctx context.Context) ([]model.Game, error) {
		return s.games.SearchGames(ctx, query, MaxSearchResults)
	})
}

// Categories lists every distinct category, sorted.
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	return call(ctx, s.store, "catalog.categories", func(ctx context.Context) ([]string, error) {
		return s.games.Categories(ctx)
	})
}

func (s *CatalogService) ByCategory(ctx context.Context, category string) ([]model.Game, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, apperror.ValidationFailed("category", "category must not be empty")
	}
	return call(ctx, s.store, "catalog.by_category", func(ctx context.Context) ([]model.Game, error) {
		return s.games.GamesByCategory(ctx, category, repository.ListOptions{Limit: DefaultCategoryPage})
	})
}

// Create adds a game to the catalogue. The rating aggregate always starts
// empty regardless of what the caller passes.
func (s *CatalogService) Create(ctx context.Context, game *model.Game) error {
	if err := validateGame(game); err != nil {
		return err
	}
	game.TotalRatingScore, game.RatingCount, game.AverageRating = 0, 0, 0

	if err := run(ctx, s.store, "catalog.create", func(ctx context.Context) error {
		return s.games.CreateGame(ctx, game)
	}); err != nil {
		return err
	}

	s.store.logger.Info("game created",
		slog.Int64("id", game.ID),
		slog.String("name", game.Name),
	)
	return nil
}

func validateGame(game *model.Game) error {
	if game == nil {
		return apperror.ValidationFailed("game", "game is required")
	}
	game.Name = strings.TrimSpace(game.Name)
	if game.Name == "" {
		return apperror.ValidationFailed("name", "name is required")
	}
	if len(game.Name) > MaxGameNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or fewer", MaxGameNameLength))
	}
	if game.MinPlayers < 0 || game.MaxPlayers < 0 || game.Age < 0 || game.BGGID < 0 {
		return apperror.ValidationFailed("game", "player counts, age and bggId must not be negative")
	}
	if game.MaxPlayers > 0 && game.MinPlayers > game.MaxPlayers {
		return apperror.ValidationFailed("minPlayers", "minPlayers must not exceed maxPlayers")
	}
	return nil
}
