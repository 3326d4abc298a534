package handler

import (
	"net/http"
	"strconv"

	"github.com/footballistika/predictor/internal/domain"
)

// SubmitPrediction creates or replaces a prediction. The deadline is judged
// against the server clock at the moment the request arrives.
func (h *Handler) SubmitPrediction(w http.ResponseWriter, r *http.Request) {
	now := h.now()

	var sub domain.PredictionSubmission
	if err := decodeBody(r, &sub); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	p, outcome, err := h.service.SubmitPrediction(r.Context(), sub, now)
	if err != nil {
		h.writeServiceError(w, err, "submit prediction")
		return
	}

	data := map[string]interface{}{
		"prediction": p,
		"outcome":    outcome,
	}
	if outcome == domain.OutcomeCreated {
		h.writeCreated(w, data)
		return
	}
	h.writeSuccess(w, data)
}

// ListUserPredictions returns a user's predictions
func (h *Handler) ListUserPredictions(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	preds, err := h.service.PredictionsForUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "list user predictions")
		return
	}
	h.writeSuccess(w, preds)
}

// ListMatchPredictions returns every prediction made on a match
func (h *Handler) ListMatchPredictions(w http.ResponseWriter, r *http.Request) {
	matchID, err := idParam(r, "matchID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	preds, err := h.service.PredictionsForMatch(r.Context(), matchID)
	if err != nil {
		h.writeServiceError(w, err, "list match predictions")
		return
	}
	h.writeSuccess(w, preds)
}

// ListAdmissibleMatches returns the matches a user can still predict
func (h *Handler) ListAdmissibleMatches(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	matches, err := h.service.AdmissibleMatches(r.Context(), userID, h.now())
	if err != nil {
		h.writeServiceError(w, err, "list admissible matches")
		return
	}
	h.writeSuccess(w, matches)
}

// GetAverages returns the mean predicted score per match. Finished matches are
// left out unless ?include_finished=true.
func (h *Handler) GetAverages(w http.ResponseWriter, r *http.Request) {
	includeFinished := false
	if raw := r.URL.Query().Get("include_finished"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		includeFinished = v
	}

	averages, err := h.service.Averages(r.Context(), includeFinished)
	if err != nil {
		h.writeServiceError(w, err, "compute averages")
		return
	}
	h.writeSuccess(w, averages)
}
