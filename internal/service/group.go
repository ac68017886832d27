package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

// GroupService manages play groups, their events and the game votes on
// those events.
//
// Permissions:
//   - membership changes and deletion are owner only
//   - events and votes are open to the owner and the members
//   - group details and vote tallies are public
type GroupService struct {
	groups repository.GroupRepository
	events repository.EventRepository
	users  repository.UserRepository
	store  store
}

func NewGroupService(
	groups repository.GroupRepository,
	events repository.EventRepository,
	users repository.UserRepository,
	logger *slog.Logger,
	opts ...Option,
) *GroupService {
	return &GroupService{
		groups: groups,
		events: events,
		users:  users,
		store:  newStore(logger, opts),
	}
}

// Create makes a new group owned by p. Names are unique across groups.
func (s *GroupService) Create(ctx context.Context, p auth.Principal, name string) (*model.Group, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	name, err := validateName("name", name, model.MaxGroupNameLength)
	if err != nil {
		return nil, err
	}

	group := &model.Group{Name: name, OwnerID: p.UserID}
	if err := run(ctx, s.store, "group.create", func(ctx context.Context) error {
		return s.groups.CreateGroup(ctx, group)
	}); err != nil {
		return nil, err
	}

	s.store.logger.Info("group created",
		slog.Int64("groupID", group.ID),
		slog.String("name", group.Name),
		slog.Int64("ownerID", p.UserID),
	)
	return group, nil
}

// Details returns the group with its owner, members and the union of the
// games they own.
func (s *GroupService) Details(ctx context.Context, groupID int64) (*model.GroupDetails, error) {
	group, err := s.group(ctx, groupID)
	if err != nil {
		return nil, err
	}

	owner, err := call(ctx, s.store, "user.get", func(ctx context.Context) (*model.User, error) {
		return s.users.GetUserByID(ctx, group.OwnerID)
	})
	if err != nil {
		return nil, err
	}
	members, err := call(ctx, s.store, "group.members", func(ctx context.Context) ([]model.UserSummary, error) {
		return s.groups.GroupMembers(ctx, groupID)
	})
	if err != nil {
		return nil, err
	}
	games, err := call(ctx, s.store, "group.games", func(ctx context.Context) ([]model.Game, error) {
		return s.groups.GroupGames(ctx, groupID)
	})
	if err != nil {
		return nil, err
	}

	return &model.GroupDetails{
		Group:   *group,
		Owner:   owner.Summary(),
		Members: members,
		Games:   games,
	}, nil
}

// AddMember adds userID to the group. Only the owner may do this, and the
// owner is never a member of their own group.
func (s *GroupService) AddMember(ctx context.Context, p auth.Principal, groupID, userID int64) error {
	if err := requireID("userId", userID); err != nil {
		return err
	}
	group, err := s.ownedGroup(ctx, p, groupID)
	if err != nil {
		return err
	}
	if userID == group.OwnerID {
		return apperror.Conflict("the owner already belongs to the group")
	}

	if err := run(ctx, s.store, "group.add_member", func(ctx context.Context) error {
		return s.groups.AddMember(ctx, groupID, userID)
	}); err != nil {
		return err
	}

	s.store.logger.Info("group member added",
		slog.Int64("groupID", groupID),
		slog.Int64("userID", userID),
	)
	return nil
}

// RemoveMember takes userID out of the group. Removing a non-member is a
// no-op.
func (s *GroupService) RemoveMember(ctx context.Context, p auth.Principal, groupID, userID int64) error {
	if err := requireID("userId", userID); err != nil {
		return err
	}
	if _, err := s.ownedGroup(ctx, p, groupID); err != nil {
		return err
	}
	return run(ctx, s.store, "group.remove_member", func(ctx context.Context) error {
		return s.groups.RemoveMember(ctx, groupID, userID)
	})
}

// Delete removes the group and everything hanging off it.
func (s *GroupService) Delete(ctx context.Context, p auth.Principal, groupID int64) error {
	if _, err := s.ownedGroup(ctx, p, groupID); err != nil {
		return err
	}
	if err := run(ctx, s.store, "group.delete", func(ctx context.Context) error {
		return s.groups.DeleteGroup(ctx, groupID)
	}); err != nil {
		return err
	}

	s.store.logger.Info("group deleted",
		slog.Int64("groupID", groupID),
		slog.Int64("ownerID", p.UserID),
	)
	return nil
}

// CreateEvent schedules an event. date must be RFC 3339 and is stored in UTC.
func (s *GroupService) CreateEvent(ctx context.Context, p auth.Principal, groupID int64, name, date string) (*model.Event, error) {
	name, err := validateName("name", name, model.MaxEventNameLength)
	if err != nil {
		return nil, err
	}
	when, err := time.Parse(time.RFC3339, strings.TrimSpace(date))
	if err != nil {
		return nil, apperror.ValidationFailed("date", "date must be an RFC 3339 timestamp")
	}
	if err := s.requireParticipant(ctx, p, groupID); err != nil {
		return nil, err
	}

	event := &model.Event{GroupID: groupID, Name: name, Date: when.UTC()}
	if err := run(ctx, s.store, "event.create", func(ctx context.Context) error {
		return s.events.CreateEvent(ctx, event)
	}); err != nil {
		return nil, err
	}

	s.store.logger.Info("event created",
		slog.Int64("eventID", event.ID),
		slog.Int64("groupID", groupID),
		slog.Time("date", event.Date),
	)
	return event, nil
}

// Events lists the group's events by date.
func (s *GroupService) Events(ctx context.Context, p auth.Principal, groupID int64) ([]model.Event, error) {
	if err := s.requireParticipant(ctx, p, groupID); err != nil {
		return nil, err
	}
	return call(ctx, s.store, "event.list", func(ctx context.Context) ([]model.Event, error) {
		return s.events.GroupEvents(ctx, groupID)
	})
}

// ToggleVote flips p's vote for gameID on the event and reports whether the
// vote now exists.
func (s *GroupService) ToggleVote(ctx context.Context, p auth.Principal, eventID, gameID int64) (bool, error) {
	if err := requireID("gameId", gameID); err != nil {
		return false, err
	}
	event, err := s.event(ctx, eventID)
	if err != nil {
		return false, err
	}
	if err := s.requireParticipant(ctx, p, event.GroupID); err != nil {
		return false, err
	}

	return call(ctx, s.store, "event.toggle_vote", func(ctx context.Context) (bool, error) {
		return s.events.ToggleVote(ctx, eventID, gameID, p.UserID)
	})
}

// Votes is the per-game tally for an event, most votes first.
func (s *GroupService) Votes(ctx context.Context, eventID int64) ([]model.VoteCount, error) {
	if _, err := s.event(ctx, eventID); err != nil {
		return nil, err
	}
	return call(ctx, s.store, "event.votes", func(ctx context.Context) ([]model.VoteCount, error) {
		return s.events.VoteTally(ctx, eventID)
	})
}

func (s *GroupService) group(ctx context.Context, groupID int64) (*model.Group, error) {
	if err := requireID("groupId", groupID); err != nil {
		return nil, err
	}
	return call(ctx, s.store, "group.get", func(ctx context.Context) (*model.Group, error) {
		return s.groups.GetGroup(ctx, groupID)
	})
}

func (s *GroupService) event(ctx context.Context, eventID int64) (*model.Event, error) {
	if err := requireID("eventId", eventID); err != nil {
		return nil, err
	}
	return call(ctx, s.store, "event.get", func(ctx context.Context) (*model.Event, error) {
		return s.events.GetEvent(ctx, eventID)
	})
}

// ownedGroup loads the group and fails with Forbidden unless p owns it.
func (s *GroupService) ownedGroup(ctx context.Context, p auth.Principal, groupID int64) (*model.Group, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	group, err := s.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.OwnerID != p.UserID {
		return nil, apperror.Forbidden("only the group owner can do that")
	}
	return group, nil
}

// requireParticipant fails with NotFound for a missing group and Forbidden
// when p neither owns nor belongs to it.
func (s *GroupService) requireParticipant(ctx context.Context, p auth.Principal, groupID int64) error {
	return checkParticipant(ctx, s.store, s.groups, p, groupID)
}

func checkParticipant(ctx context.Context, st store, groups repository.GroupRepository, p auth.Principal, groupID int64) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if err := requireID("groupId", groupID); err != nil {
		return err
	}
	group, err := call(ctx, st, "group.get", func(ctx context.Context) (*model.Group, error) {
		return groups.GetGroup(ctx, groupID)
	})
	if err != nil {
		return err
	}
	if group.OwnerID == p.UserID {
		return nil
	}

	ok, err := call(ctx, st, "group.is_participant", func(ctx context.Context) (bool, error) {
		return groups.IsParticipant(ctx, groupID, p.UserID)
	})
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Forbidden("you are not a member of this group")
	}
	return nil
}

// validateName trims s and checks it is 1..max characters long.
func validateName(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if utf8.RuneCountInString(s) > max {
		return "", apperror.ValidationFailed(field, fmt.Sprintf("%s must be %d characters or fewer", field, max))
	}
	return s, nil
}
