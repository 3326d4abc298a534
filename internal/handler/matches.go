package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/footballistika/predictor/internal/domain"
)

// EnsureUserRequest registers a user or refreshes their display name
type EnsureUserRequest struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// CreateMatchRequest describes a new match
type CreateMatchRequest struct {
	Team1     string    `json:"team1"`
	Team2     string    `json:"team2"`
	StartTime time.Time `json:"start_time"`
}

// SetResultRequest carries the final score of a match
type SetResultRequest struct {
	Score1 *int `json:"score1"`
	Score2 *int `json:"score2"`
}

// EnsureUser handles first contact with a user
func (h *Handler) EnsureUser(w http.ResponseWriter, r *http.Request) {
	var req EnsureUserRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := domain.ValidateUserID(req.ID); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	user, outcome, err := h.service.EnsureUser(r.Context(), req.ID, req.Username)
	if err != nil {
		h.writeServiceError(w, err, "ensure user")
		return
	}

	if outcome == domain.OutcomeCreated {
		h.writeCreated(w, user)
		return
	}
	h.writeSuccess(w, user)
}

// ListMatches returns matches, optionally filtered by ?status=scheduled,live
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	var filter domain.MatchFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := domain.ParseMatchStatus(part)
			if err != nil {
				h.writeError(w, http.StatusBadRequest, err)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	matches, err := h.service.ListMatches(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "list matches")
		return
	}
	h.writeSuccess(w, matches)
}

// CreateMatch handles match creation
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	m, err := h.service.CreateMatch(r.Context(), req.Team1, req.Team2, req.StartTime)
	if err != nil {
		h.writeServiceError(w, err, "create match")
		return
	}
	h.writeCreated(w, m)
}

// GetMatch returns a match by id
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	m, err := h.service.GetMatch(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get match")
		return
	}
	h.writeSuccess(w, m)
}

// SetLive marks a match as in progress
func (h *Handler) SetLive(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	m, err := h.service.SetLive(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "set match live")
		return
	}
	h.writeSuccess(w, m)
}

// SetResult records the final score of a match
func (h *Handler) SetResult(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req SetResultRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Score1 == nil || req.Score2 == nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrMissingScore)
		return
	}

	m, err := h.service.SetResult(r.Context(), id, domain.Score{Home: *req.Score1, Away: *req.Score2})
	if err != nil {
		h.writeServiceError(w, err, "set match result")
		return
	}
	h.writeSuccess(w, m)
}

// GetSettlement lists the points each predictor earned on a finished match
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	awards, err := h.service.SettleMatch(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "settle match")
		return
	}
	h.writeSuccess(w, awards)
}
