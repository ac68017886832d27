// Package repository declares the storage contracts the services depend on.
//
// Every method that reads and then writes runs as one transaction inside the
// implementation; services never compose two calls into a read-modify-write.
package repository

import (
	"context"

	"github.com/sakif/tabletop/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	// UpsertGoogleUser creates the user on first sign-in and refreshes the
	// profile fields on later ones. user.ID is filled in.
	UpsertGoogleUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]model.UserSummary, error)
}

type GameRepository interface {
	CreateGame(ctx context.Context, game *model.Game) error
	GetGame(ctx context.Context, id int64) (*model.Game, error)
	SearchGames(ctx context.Context, query string, limit int) ([]model.Game, error)
	Categories(ctx context.Context) ([]string, error)
	GamesByCategory(ctx context.Context, category string, opts ListOptions) ([]model.Game, error)
}

type RatingRepository interface {
	// SubmitRating upserts the user's rating and adjusts the game aggregate
	// in one transaction, returning the aggregate after commit.
	SubmitRating(ctx context.Context, userID, gameID int64, rating int) (model.Aggregate, error)
	// RemoveRating deletes the rating if present. Absent ratings are a no-op.
	RemoveRating(ctx context.Context, userID, gameID int64) (model.Aggregate, error)
	UserRating(ctx context.Context, userID, gameID int64) (model.UserRating, error)
	Aggregate(ctx context.Context, gameID int64) (model.Aggregate, error)
	// RankGames orders by rounded average desc, then rating count desc.
	RankGames(ctx context.Context, limit int) ([]model.Game, error)
}

type CollectionRepository interface {
	// AddToCollection returns a Conflict error if itemID is already present
	// and NotFound if the user or the item does not exist.
	AddToCollection(ctx context.Context, userID int64, c model.Collection, itemID int64) (model.IDSet, error)
	RemoveFromCollection(ctx context.Context, userID int64, c model.Collection, itemID int64) (model.IDSet, error)
	IsMember(ctx context.Context, userID int64, c model.Collection, itemID int64) (bool, error)
	Collection(ctx context.Context, userID int64, c model.Collection) (model.IDSet, error)
	CollectionGames(ctx context.Context, userID int64, c model.Collection) ([]model.Game, error)
	Friends(ctx context.Context, userID int64) ([]model.UserSummary, error)
}

type GroupRepository interface {
	// CreateGroup fails with Conflict when the name is taken.
	CreateGroup(ctx context.Context, group *model.Group) error
	GetGroup(ctx context.Context, id int64) (*model.Group, error)
	GroupMembers(ctx context.Context, groupID int64) ([]model.UserSummary, error)
	// GroupGames is the union of games owned by the owner and every member.
	GroupGames(ctx context.Context, groupID int64) ([]model.Game, error)
	AddMember(ctx context.Context, groupID, userID int64) error
	RemoveMember(ctx context.Context, groupID, userID int64) error
	// DeleteGroup removes the group with its votes, events, members and
	// messages in one transaction.
	DeleteGroup(ctx context.Context, groupID int64) error
	UserGroups(ctx context.Context, userID int64) ([]model.Group, error)
	// EligibleGroups lists groups owned by ownerID that userID is not in.
	EligibleGroups(ctx context.Context, ownerID, userID int64) ([]model.Group, error)
	// IsParticipant reports whether userID owns or belongs to the group.
	IsParticipant(ctx context.Context, groupID, userID int64) (bool, error)
}

type EventRepository interface {
	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	GroupEvents(ctx context.Context, groupID int64) ([]model.Event, error)
	// ToggleVote adds the vote if absent and removes it if present.
	// The returned bool is true when the vote now exists.
	ToggleVote(ctx context.Context, eventID, gameID, userID int64) (bool, error)
	VoteTally(ctx context.Context, eventID int64) ([]model.VoteCount, error)
}

type MessageRepository interface {
	// SaveMessage fills ID, CreatedAt and Username.
	SaveMessage(ctx context.Context, msg *model.ChatMessage) error
	// GroupMessages returns the latest limit messages, oldest first.
	GroupMessages(ctx context.Context, groupID int64, limit int) ([]model.ChatMessage, error)
}
