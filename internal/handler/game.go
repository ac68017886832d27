package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/service"
)

// GameHandler serves the catalogue and the rating endpoints.
type GameHandler struct {
	catalog *service.CatalogService
	ratings *service.RatingService
	logger  *slog.Logger
}

func NewGameHandler(catalog *service.CatalogService, ratings *service.RatingService, logger *slog.Logger) *GameHandler {
	return &GameHandler{catalog: catalog, ratings: ratings, logger: logger}
}

// HandleGet returns one game. Signed-in callers also get their collection
// flags and rating.
//
// HTTP: GET /api/games/{id} (OptionalAuth)
func (h *GameHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	game, err := h.catalog.Game(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// HTTP: GET /api/games/search?q=
func (h *GameHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	games, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// HTTP: GET /api/games/top?limit=
func (h *GameHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	games, err := h.ratings.Top(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// HTTP: GET /api/games/ranking?limit=
func (h *GameHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	games, err := h.ratings.Ranking(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// HTTP: GET /api/categories
func (h *GameHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// HTTP: GET /api/categories/{category}/games
func (h *GameHandler) HandleByCategory(w http.ResponseWriter, r *http.Request) {
	games, err := h.catalog.ByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// HTTP: GET /api/games/{id}/rating
func (h *GameHandler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	agg, err := h.ratings.Aggregate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

type ratingRequest struct {
	Rating *int `json:"rating"`
}

// HandleSubmitRating creates or replaces the caller's rating and answers
// with the updated aggregate.
//
// HTTP: PUT /api/games/{id}/rating {"rating": 1..10}
func (h *GameHandler) HandleSubmitRating(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req ratingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Rating == nil {
		writeError(w, apperror.ValidationFailed("rating", "rating is required"))
		return
	}

	agg, err := h.ratings.Submit(r.Context(), principal(r), id, *req.Rating)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// HTTP: DELETE /api/games/{id}/rating
func (h *GameHandler) HandleRemoveRating(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	agg, err := h.ratings.Remove(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// HandleMyRating answers {"gameId": id, "rating": n}; rating is null when
// the caller has not rated the game.
//
// HTTP: GET /api/games/{id}/rating/me
func (h *GameHandler) HandleMyRating(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	rating, err := h.ratings.UserRating(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}
