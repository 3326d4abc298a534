package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/footballistika/predictor/internal/domain"
	"github.com/footballistika/predictor/internal/service"
)

// ReadinessCheck reports whether a backing dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the prediction API
type Handler struct {
	service *service.Service
	logger  *slog.Logger
	checks  map[string]ReadinessCheck
	now     func() time.Time
}

// NewHandler creates a new HTTP handler. checks are consulted by /ready.
func NewHandler(svc *service.Service, logger *slog.Logger, checks map[string]ReadinessCheck) *Handler {
	return &Handler{
		service: svc,
		logger:  logger,
		checks:  checks,
		now:     time.Now,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", h.EnsureUser)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/standing", h.GetStanding)
			r.Get("/predictions", h.ListUserPredictions)
			r.Get("/admissible-matches", h.ListAdmissibleMatches)
		})

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", h.ListMatches)
			r.Post("/", h.CreateMatch)

			r.Route("/{matchID}", func(r chi.Router) {
				r.Get("/", h.GetMatch)
				r.Post("/live", h.SetLive)
				r.Post("/result", h.SetResult)
				r.Get("/predictions", h.ListMatchPredictions)
				r.Get("/settlement", h.GetSettlement)
			})
		})

		r.Post("/predictions", h.SubmitPrediction)
		r.Get("/predictions/averages", h.GetAverages)

		r.Get("/leaderboard", h.GetLeaderboard)
		r.Post("/leaderboard/refresh", h.RefreshLeaderboard)

		r.Get("/accuracy/result", h.GetResultAccuracy)
		r.Get("/accuracy/goal", h.GetGoalAccuracy)

		r.Get("/points-rule", h.GetPointsRule)
		r.Put("/points-rule", h.UpdatePointsRule)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func (h *Handler) writeCreated(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a domain error class to its status code. Anything
// unclassified is logged and hidden behind a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsInvalidTransitionError(err):
		h.writeError(w, http.StatusConflict, err)
	case domain.IsDeadlineExceededError(err):
		h.writeError(w, http.StatusUnprocessableEntity, err)
	default:
		h.logger.Error("failed to "+action, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// decodeBody decodes the JSON request body into dst
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if domain.IsValidationError(err) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

// idParam reads a positive numeric URL parameter
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidRequest, name)
	}
	return id, nil
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns 503 until every backing dependency answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			h.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("%s is not ready", name))
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
