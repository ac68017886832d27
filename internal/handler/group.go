package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/tabletop/internal/service"
)

// GroupHandler serves play groups, their events and event votes.
type GroupHandler struct {
	groups *service.GroupService
	logger *slog.Logger
}

func NewGroupHandler(groups *service.GroupService, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, logger: logger}
}

type createGroupRequest struct {
	Name string `json:"name"`
}

type memberRequest struct {
	UserID int64 `json:"userId"`
}

type createEventRequest struct {
	Name string `json:"name"`
	Date string `json:"date"` // RFC 3339
}

type voteRequest struct {
	GameID int64 `json:"gameId"`
}

// HTTP: POST /api/groups {"name": "..."}
func (h *GroupHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	group, err := h.groups.Create(r.Context(), principal(r), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// HTTP: GET /api/groups/{id}
func (h *GroupHandler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	details, err := h.groups.Details(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// HTTP: DELETE /api/groups/{id}
func (h *GroupHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.groups.Delete(r.Context(), principal(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: POST /api/groups/{id}/members {"userId": n}
func (h *GroupHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.groups.AddMember(r.Context(), principal(r), id, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: DELETE /api/groups/{id}/members/{userID}
func (h *GroupHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.groups.RemoveMember(r.Context(), principal(r), id, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: GET /api/groups/{id}/events
func (h *GroupHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := h.groups.Events(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HTTP: POST /api/groups/{id}/events {"name": "...", "date": "2026-11-01T19:00:00Z"}
func (h *GroupHandler) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req createEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	event, err := h.groups.CreateEvent(r.Context(), principal(r), id, req.Name, req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// HandleToggleVote answers {"voted": true} when the vote was added and
// {"voted": false} when it was withdrawn.
//
// HTTP: POST /api/events/{id}/votes {"gameId": n}
func (h *GroupHandler) HandleToggleVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	voted, err := h.groups.ToggleVote(r.Context(), principal(r), id, req.GameID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"voted": voted})
}

// HTTP: GET /api/events/{id}/votes
func (h *GroupHandler) HandleVotes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	votes, err := h.groups.Votes(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}
