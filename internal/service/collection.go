package service

import (
	"context"
	"log/slog"
	"slices"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

// CollectionService manages a user's owned, wishlist, favorites and friends
// sets. Sets hold ids only; listing resolves them to games or users.
type CollectionService struct {
	collections repository.CollectionRepository
	users       repository.UserRepository
	store       store
}

func NewCollectionService(
	collections repository.CollectionRepository,
	users repository.UserRepository,
	logger *slog.Logger,
	opts ...Option,
) *CollectionService {
	return &CollectionService{
		collections: collections,
		users:       users,
		store:       newStore(logger, opts),
	}
}

// Add puts targetID into p's collection c and returns the resulting set.
//
// Errors:
//   - Validation: bad id, unknown collection, or following yourself
//   - NotFound:   the game (or, for friends, the user) does not exist
//   - Conflict:   targetID is already in the set; nothing changes
func (s *CollectionService) Add(ctx context.Context, p auth.Principal, c model.Collection, targetID int64) (model.IDSet, error) {
	if err := s.validate(p, c, targetID); err != nil {
		return nil, err
	}
	if c == model.CollectionFriends && targetID == p.UserID {
		return nil, apperror.ValidationFailed("id", "you cannot follow yourself")
	}

	set, err := call(ctx, s.store, "collection.add", func(ctx context.Context) (model.IDSet, error) {
		return s.collections.AddToCollection(ctx, p.UserID, c, targetID)
	})
	if err != nil {
		return nil, err
	}

	s.store.logger.Info("collection item added",
		slog.Int64("userID", p.UserID),
		slog.String("collection", string(c)),
		slog.Int64("itemID", targetID),
	)
	return set, nil
}

// Remove takes targetID out of p's collection c. A non-member is a no-op.
func (s *CollectionService) Remove(ctx context.Context, p auth.Principal, c model.Collection, targetID int64) (model.IDSet, error) {
	if err := s.validate(p, c, targetID); err != nil {
		return nil, err
	}
	return call(ctx, s.store, "collection.remove", func(ctx context.Context) (model.IDSet, error) {
		return s.collections.RemoveFromCollection(ctx, p.UserID, c, targetID)
	})
}

func (s *CollectionService) IsMember(ctx context.Context, p auth.Principal, c model.Collection, targetID int64) (bool, error) {
	if err := s.validate(p, c, targetID); err != nil {
		return false, err
	}
	return call(ctx, s.store, "collection.is_member", func(ctx context.Context) (bool, error) {
		return s.collections.IsMember(ctx, p.UserID, c, targetID)
	})
}

// Games resolves one of userID's game collections.
func (s *CollectionService) Games(ctx context.Context, userID int64, c model.Collection) ([]model.Game, error) {
	if err := requireID("userId", userID); err != nil {
		return nil, err
	}
	if !validCollection(c) || !c.HoldsGames() {
		return nil, apperror.ValidationFailed("collection", "collection must be one of owned, wishlist, favorites")
	}
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	return call(ctx, s.store, "collection.games", func(ctx context.Context) ([]model.Game, error) {
		return s.collections.CollectionGames(ctx, userID, c)
	})
}

// Friends resolves the users userID follows.
func (s *CollectionService) Friends(ctx context.Context, userID int64) ([]model.UserSummary, error) {
	if err := requireID("userId", userID); err != nil {
		return nil, err
	}
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	return call(ctx, s.store, "collection.friends", func(ctx context.Context) ([]model.UserSummary, error) {
		return s.collections.Friends(ctx, userID)
	})
}

// Shelf is the user's header plus all three game collections resolved.
func (s *CollectionService) Shelf(ctx context.Context, userID int64) (*model.Shelf, error) {
	if err := requireID("userId", userID); err != nil {
		return nil, err
	}
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	shelf := &model.Shelf{UserSummary: user.Summary()}
	for _, part := range []struct {
		c    model.Collection
		dest *[]model.Game
	}{
		{model.CollectionOwned, &shelf.OwnedGames},
		{model.CollectionWishlist, &shelf.Wishlist},
		{model.CollectionFavorites, &shelf.Favorites},
	} {
		games, err := call(ctx, s.store, "collection.games", func(ctx context.Context) ([]model.Game, error) {
			return s.collections.CollectionGames(ctx, userID, part.c)
		})
		if err != nil {
			return nil, err
		}
		*part.dest = games
	}
	return shelf, nil
}

func (s *CollectionService) user(ctx context.Context, id int64) (*model.User, error) {
	return call(ctx, s.store, "user.get", func(ctx context.Context) (*model.User, error) {
		return s.users.GetUserByID(ctx, id)
	})
}

func (s *CollectionService) validate(p auth.Principal, c model.Collection, targetID int64) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if !validCollection(c) {
		return apperror.ValidationFailed("collection", "unknown collection "+string(c))
	}
	return requireID("id", targetID)
}

func validCollection(c model.Collection) bool {
	return slices.Contains(model.Collections, c)
}
