package service

import (
	"context"
	"log/slog"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/auth"
	"github.com/sakif/tabletop/internal/chat"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// ChatService persists group chat messages and relays them to live
// subscribers through a chat.Broker. Only the owner and members of a group
// may read or write its chat.
type ChatService struct {
	messages repository.MessageRepository
	groups   repository.GroupRepository
	broker   chat.Broker
	store    store
}

func NewChatService(
	messages repository.MessageRepository,
	groups repository.GroupRepository,
	broker chat.Broker,
	logger *slog.Logger,
	opts ...Option,
) *ChatService {
	return &ChatService{
		messages: messages,
		groups:   groups,
		broker:   broker,
		store:    newStore(logger, opts),
	}
}

// Send stores the message and then publishes it. A publish failure is
// logged but not returned: the message is saved and shows up in History.
func (s *ChatService) Send(ctx context.Context, p auth.Principal, groupID int64, text string) (*model.ChatMessage, error) {
	text, err := validateName("message", text, model.MaxMessageLength)
	if err != nil {
		return nil, err
	}
	if err := checkParticipant(ctx, s.store, s.groups, p, groupID); err != nil {
		return nil, err
	}

	msg := &model.ChatMessage{GroupID: groupID, UserID: p.UserID, Message: text}
	if err := run(ctx, s.store, "chat.save", func(ctx context.Context) error {
		return s.messages.SaveMessage(ctx, msg)
	}); err != nil {
		return nil, err
	}

	if err := s.broker.Publish(ctx, *msg); err != nil {
		s.store.logger.Error("chat publish failed",
			slog.Int64("groupID", groupID),
			slog.Int64("messageID", msg.ID),
			slog.Any("error", err),
		)
	}
	return msg, nil
}

// History returns the latest limit messages, oldest first.
func (s *ChatService) History(ctx context.Context, p auth.Principal, groupID int64, limit int) ([]model.ChatMessage, error) {
	if err := checkParticipant(ctx, s.store, s.groups, p, groupID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)
	return call(ctx, s.store, "chat.history", func(ctx context.Context) ([]model.ChatMessage, error) {
		return s.messages.GroupMessages(ctx, groupID, limit)
	})
}

// Subscribe streams new messages for the group until ctx is done.
// The permission check runs once, when the stream opens.
func (s *ChatService) Subscribe(ctx context.Context, p auth.Principal, groupID int64) (<-chan model.ChatMessage, error) {
	if err := checkParticipant(ctx, s.store, s.groups, p, groupID); err != nil {
		return nil, err
	}
	// No storage timeout here: the subscription lives as long as ctx.
	ch, err := s.broker.Subscribe(ctx, groupID)
	if err != nil {
		s.store.logger.Error("chat subscribe failed",
			slog.Int64("groupID", groupID),
			slog.Any("error", err),
		)
		return nil, apperror.Storage("chat.subscribe", err)
	}
	return ch, nil
}
