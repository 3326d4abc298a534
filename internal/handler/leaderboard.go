package handler

import (
	"net/http"
	"strconv"

	"github.com/footballistika/predictor/internal/domain"
)

// PointsRuleRequest sets the reward values
type PointsRuleRequest struct {
	Exact  *int `json:"exact"`
	Result *int `json:"result"`
}

// GetLeaderboard returns the top of the leaderboard and, with ?user_id=, the
// caller's own row
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	var userID int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidUserID)
			return
		}
		userID = id
	}

	view, err := h.service.Leaderboard(r.Context(), limit, userID)
	if err != nil {
		h.writeServiceError(w, err, "get leaderboard")
		return
	}
	h.writeSuccess(w, view)
}

// RefreshLeaderboard rebuilds the projection on demand
func (h *Handler) RefreshLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.RefreshLeaderboard(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "refresh leaderboard")
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"status": "refreshed",
		"users":  len(entries),
	})
}

// GetStanding returns a user's predictions summary and place
func (h *Handler) GetStanding(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	standing, err := h.service.UserStanding(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "get standing")
		return
	}
	h.writeSuccess(w, standing)
}

func (h *Handler) GetResultAccuracy(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ResultAccuracy(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "compute result accuracy")
		return
	}
	h.writeSuccess(w, rows)
}

func (h *Handler) GetGoalAccuracy(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.GoalAccuracy(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "compute goal accuracy")
		return
	}
	h.writeSuccess(w, rows)
}

// GetPointsRule returns the active reward values
func (h *Handler) GetPointsRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.PointsRule(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "get points rule")
		return
	}
	h.writeSuccess(w, rule)
}

// UpdatePointsRule replaces the reward values and rebuilds the leaderboard
func (h *Handler) UpdatePointsRule(w http.ResponseWriter, r *http.Request) {
	var req PointsRuleRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Exact == nil || req.Result == nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRule)
		return
	}

	rule, err := h.service.UpdatePointsRule(r.Context(), *req.Exact, *req.Result)
	if err != nil {
		h.writeServiceError(w, err, "update points rule")
		return
	}
	h.writeSuccess(w, rule)
}
