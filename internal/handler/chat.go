package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/service"
)

// DefaultHeartbeat is how often an idle stream sends a comment line so
// proxies keep the connection open.
const DefaultHeartbeat = 25 * time.Second

// ChatHandler serves group chat history, posting, and the live
// Server-Sent Events stream.
type ChatHandler struct {
	chat      *service.ChatService
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewChatHandler creates a ChatHandler. heartbeat <= 0 selects
// DefaultHeartbeat.
func NewChatHandler(chat *service.ChatService, heartbeat time.Duration, logger *slog.Logger) *ChatHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &ChatHandler{chat: chat, heartbeat: heartbeat, logger: logger}
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// HTTP: GET /api/groups/{id}/messages?limit=
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := h.chat.History(r.Context(), principal(r), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// HTTP: POST /api/groups/{id}/messages {"message": "..."}
func (h *ChatHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.chat.Send(r.Context(), principal(r), id, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleStream relays new group messages as Server-Sent Events until the
// client goes away:
//
//	id: 17
//	event: message
//	data: {"id":17,"groupId":3,...}
//
// Permission errors are answered as ordinary JSON errors before the stream
// starts.
//
// HTTP: GET /api/groups/{id}/messages/stream
func (h *ChatHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	messages, err := h.chat.Subscribe(ctx, principal(r), id)
	if err != nil {
		writeError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// The server's WriteTimeout would otherwise cut the stream.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("chat stream: write deadline not supported", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Error("chat stream: flushing not supported", slog.String("error", err.Error()))
		return
	}

	h.logger.Info("chat stream opened", slog.Int64("groupID", id))
	defer h.logger.Info("chat stream closed", slog.Int64("groupID", id))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := writeEvent(w, msg); err != nil {
				h.logger.Warn("chat stream: write failed",
					slog.Int64("groupID", id),
					slog.String("error", err.Error()),
				)
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, msg model.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: message\ndata: %s\n\n", msg.ID, data)
	return err
}
