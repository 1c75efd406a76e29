package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/skridlevsky/panel-vote/internal/catalog"
	"github.com/skridlevsky/panel-vote/internal/panel"
)

// maxBodyBytes bounds request bodies; every payload here is a handful of slugs
const maxBodyBytes = 64 << 10

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
	Voting    *panel.Stats      `json:"voting,omitempty"`
	Catalog   *catalog.Status   `json:"catalog,omitempty"`
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	Health(context.Context) error
}

// NewHealthHandler creates a health handler with service checks
func NewHealthHandler(store HealthChecker, stats func() panel.Stats, syncer *catalog.Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := make(map[string]string)
		status := "ok"

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := store.Health(ctx); err != nil {
				slog.Error("Store health check failed", "error", err)
				services["store"] = "unhealthy"
				status = "degraded"
			} else {
				services["store"] = "healthy"
			}
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Services:  services,
		}
		if stats != nil {
			s := stats()
			response.Voting = &s
		}
		if syncer != nil {
			response.Catalog = syncer.Status()
		}

		if status != "ok" {
			respondJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		respondJSON(w, http.StatusOK, response)
	}
}

// ErrorResponse is the envelope every failure is reported in
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// parseJSON is a helper to decode JSON request bodies. An empty body decodes to
// the zero value.
func parseJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondMessage writes the error envelope with an explicit status
func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Message: message, Status: status})
}

// respondError maps err to its status and writes the envelope. Causes are logged,
// never returned.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	pe := panel.AsError(err)
	status := pe.Status()

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", pe.Kind.String(),
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
	} else {
		slog.Debug("Request rejected", "path", r.URL.Path, "kind", pe.Kind.String(), "message", pe.Message)
	}

	respondMessage(w, status, pe.Message)
}

// NotFoundHandler answers unknown routes with the error envelope
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, panel.ErrNotFound)
}

// MethodNotAllowedHandler answers known routes called with the wrong method
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, panel.ErrMethodNotAllowed)
}
