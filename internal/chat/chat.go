// Package chat fans group chat messages out to live subscribers.
//
// Messages are persisted by the service before they are published; a broker
// only delivers. A subscriber that falls behind loses messages rather than
// stalling the publisher, and can reload history from the store.
package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sakif/tabletop/internal/metrics"
	"github.com/sakif/tabletop/internal/model"
)

// SubscriberBuffer is how many undelivered messages a subscriber may hold.
const SubscriberBuffer = 32

// Broker delivers messages to the subscribers of a group.
type Broker interface {
	Publish(ctx context.Context, msg model.ChatMessage) error
	// Subscribe returns a channel of the group's messages. The channel is
	// closed once ctx is done.
	Subscribe(ctx context.Context, groupID int64) (<-chan model.ChatMessage, error)
	Close() error
}

// Hub is the in-process Broker used when a single instance serves all
// connections.
type Hub struct {
	logger *slog.Logger

	mu     sync.RWMutex
	groups map[int64]map[chan model.ChatMessage]struct{}
	closed bool
	done   chan struct{} // closed by Close
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		groups: make(map[int64]map[chan model.ChatMessage]struct{}),
		done:   make(chan struct{}),
	}
}

func (h *Hub) Publish(_ context.Context, msg model.ChatMessage) error {
	metrics.RecordChatMessage("memory")
	h.deliver(msg)
	return nil
}

// deliver hands msg to every subscriber of its group without blocking.
func (h *Hub) deliver(msg model.ChatMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.groups[msg.GroupID] {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("chat subscriber too slow, message dropped",
				slog.Int64("groupID", msg.GroupID),
				slog.Int64("messageID", msg.ID),
			)
		}
	}
}

func (h *Hub) Subscribe(ctx context.Context, groupID int64) (<-chan model.ChatMessage, error) {
	ch := make(chan model.ChatMessage, SubscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, nil
	}
	subs, ok := h.groups[groupID]
	if !ok {
		subs = make(map[chan model.ChatMessage]struct{})
		h.groups[groupID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()
	metrics.SubscriberOpened()

	go func() {
		select {
		case <-ctx.Done():
			h.unsubscribe(groupID, ch)
		case <-h.done:
		}
	}()

	return ch, nil
}

func (h *Hub) unsubscribe(groupID int64, ch chan model.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.groups[groupID]
	if _, ok := subs[ch]; !ok {
		return // already closed by Close
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(h.groups, groupID)
	}
	close(ch)
	metrics.SubscriberClosed()
}

// Close ends every subscription. Calling it again is a no-op.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	for groupID, subs := range h.groups {
		for ch := range subs {
			close(ch)
			metrics.SubscriberClosed()
		}
		delete(h.groups, groupID)
	}
	h.closed = true
	close(h.done)
	return nil
}

// Subscribers reports how many live subscriptions a group has.
func (h *Hub) Subscribers(groupID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}
