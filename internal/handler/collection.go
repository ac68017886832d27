package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/service"
)

// CollectionHandler exposes the owned / wishlist / favorites / friends sets.
//
// Mutations act on the caller's own sets under /api/me; reads of another
// user's sets are public under /api/users/{id}.
type CollectionHandler struct {
	collections *service.CollectionService
	logger      *slog.Logger
}

func NewCollectionHandler(collections *service.CollectionService, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{collections: collections, logger: logger}
}

type collectionItemRequest struct {
	ID int64 `json:"id"`
}

// collectionResponse is the set after a mutation.
type collectionResponse struct {
	Collection model.Collection `json:"collection"`
	IDs        model.IDSet      `json:"ids"`
}

// HTTP: POST /api/me/collections/{collection} {"id": n}
func (h *CollectionHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	c, err := collectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req collectionItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	set, err := h.collections.Add(r.Context(), principal(r), c, req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, collectionResponse{Collection: c, IDs: set})
}

// HandleRemove succeeds whether or not the id was in the set.
//
// HTTP: DELETE /api/me/collections/{collection}/{id}
func (h *CollectionHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	c, id, err := collectionItemParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	set, err := h.collections.Remove(r.Context(), principal(r), c, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionResponse{Collection: c, IDs: set})
}

// HTTP: GET /api/me/collections/{collection}/{id}
func (h *CollectionHandler) HandleIsMember(w http.ResponseWriter, r *http.Request) {
	c, id, err := collectionItemParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	member, err := h.collections.IsMember(r.Context(), principal(r), c, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"member": member})
}

// HandleMine lists one of the caller's sets resolved to records.
//
// HTTP: GET /api/me/collections/{collection}
func (h *CollectionHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.Valid() {
		writeError(w, apperror.Unauthorized())
		return
	}
	h.writeResolved(w, r, p.UserID)
}

// HTTP: GET /api/users/{id}/collections/{collection}
func (h *CollectionHandler) HandleUserCollection(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeResolved(w, r, userID)
}

// HTTP: GET /api/me/shelf
func (h *CollectionHandler) HandleShelf(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.Valid() {
		writeError(w, apperror.Unauthorized())
		return
	}
	shelf, err := h.collections.Shelf(r.Context(), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shelf)
}

// HTTP: GET /api/me/friends
func (h *CollectionHandler) HandleMyFriends(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.Valid() {
		writeError(w, apperror.Unauthorized())
		return
	}
	h.writeFriends(w, r, p.UserID)
}

// HTTP: GET /api/users/{id}/friends
func (h *CollectionHandler) HandleUserFriends(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeFriends(w, r, userID)
}

func (h *CollectionHandler) writeResolved(w http.ResponseWriter, r *http.Request, userID int64) {
	c, err := collectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !c.HoldsGames() {
		h.writeFriends(w, r, userID)
		return
	}
	games, err := h.collections.Games(r.Context(), userID, c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (h *CollectionHandler) writeFriends(w http.ResponseWriter, r *http.Request, userID int64) {
	friends, err := h.collections.Friends(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

func collectionParam(r *http.Request) (model.Collection, error) {
	raw := chi.URLParam(r, "collection")
	c, ok := model.ParseCollection(raw)
	if !ok {
		return "", apperror.ValidationFailed("collection",
			"collection must be one of owned, wishlist, favorites, friends; got "+raw)
	}
	return c, nil
}

func collectionItemParams(r *http.Request) (model.Collection, int64, error) {
	c, err := collectionParam(r)
	if err != nil {
		return "", 0, err
	}
	id, err := pathID(r, "id")
	if err != nil {
		return "", 0, err
	}
	return c, id, nil
}
