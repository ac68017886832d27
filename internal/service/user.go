package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

// UserService serves profiles, user search and the group lists shown on a
// profile page.
type UserService struct {
	users       repository.UserRepository
	collections repository.CollectionRepository
	groups      repository.GroupRepository
	store       store
}

func NewUserService(
	users repository.UserRepository,
	collections repository.CollectionRepository,
	groups repository.GroupRepository,
	logger *slog.Logger,
	opts ...Option,
) *UserService {
	return &UserService{
		users:       users,
		collections: collections,
		groups:      groups,
		store:       newStore(logger, opts),
	}
}

// Me returns the full record of the signed-in user.
func (s *UserService) Me(ctx context.Context, p auth.Principal) (*model.User, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	return s.get(ctx, p.UserID)
}

// Profile is a user's public page with the ids in each game collection.
func (s *UserService) Profile(ctx context.Context, id int64) (*model.Profile, error) {
	if err := requireID("id", id); err != nil {
		return nil, err
	}
	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	profile := &model.Profile{UserSummary: user.Summary()}
	for _, part := range []struct {
		c    model.Collection
		dest *model.IDSet
	}{
		{model.CollectionOwned, &profile.OwnedGames},
		{model.CollectionWishlist, &profile.Wishlist},
		{model.CollectionFavorites, &profile.Favorites},
	} {
		set, err := call(ctx, s.store, "collection.get", func(ctx context.Context) (model.IDSet, error) {
			return s.collections.Collection(ctx, id, part.c)
		})
		if err != nil {
			return nil, err
		}
		*part.dest = set
	}
	return profile, nil
}

// Search matches usernames case-insensitively. A blank query returns nobody.
func (s *UserService) Search(ctx context.Context, query string) ([]model.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.UserSummary{}, nil
	}
	return call(ctx, s.store, "user.search", func(ctx context.Context) ([]model.UserSummary, error) {
		return s.users.SearchUsers(ctx, query, MaxSearchResults)
	})
}

// Groups lists the groups p owns or belongs to.
func (s *UserService) Groups(ctx context.Context, p auth.Principal) ([]model.Group, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	return call(ctx, s.store, "group.user_groups", func(ctx context.Context) ([]model.Group, error) {
		return s.groups.UserGroups(ctx, p.UserID)
	})
}

// EligibleGroups lists the groups p owns that profileUserID could be added
// to. Viewing your own profile yields none.
func (s *UserService) EligibleGroups(ctx context.Context, p auth.Principal, profileUserID int64) ([]model.Group, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if err := requireID("id", profileUserID); err != nil {
		return nil, err
	}
	if profileUserID == p.UserID {
		return []model.Group{}, nil
	}
	if _, err := s.get(ctx, profileUserID); err != nil {
		return nil, err
	}
	return call(ctx, s.store, "group.eligible", func(ctx context.Context) ([]model.Group, error) {
		return s.groups.EligibleGroups(ctx, p.UserID, profileUserID)
	})
}

func (s *UserService) get(ctx context.Context, id int64) (*model.User, error) {
	return call(ctx, s.store, "user.get", func(ctx context.Context) (*model.User, error) {
		return s.users.GetUserByID(ctx, id)
	})
}
