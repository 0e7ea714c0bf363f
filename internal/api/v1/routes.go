// Package v1 provides the REST API handlers for listsync.
package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/listsync/listsync/internal/api/common"
	"github.com/listsync/listsync/internal/service"
	"github.com/listsync/listsync/internal/versions"
)

// TriggerResponse is returned by POST /v1/sync
type TriggerResponse struct {
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}

// Routes holds the v1 handlers
type Routes struct {
	service service.SyncService
}

// Router creates the router for the v1 API
func Router(svc service.SyncService) http.Handler {
	routes := &Routes{service: svc}

	r := chi.NewRouter()
	r.Get("/status", routes.getStatus)
	r.Post("/sync", routes.triggerSync)

	return r
}

// getStatus handles GET /v1/status
func (rr *Routes) getStatus(w http.ResponseWriter, r *http.Request) {
	syncStatus, err := rr.service.GetStatus(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrStatusNotFound) {
			common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
			return
		}
		slog.ErrorContext(r.Context(), "Failed to get sync status", "error", err)
		common.WriteErrorResponse(w, "Failed to get sync status", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, syncStatus, http.StatusOK)
}

// triggerSync handles POST /v1/sync
func (rr *Routes) triggerSync(w http.ResponseWriter, r *http.Request) {
	if !rr.service.TriggerSync(r.Context()) {
		common.WriteJSONResponse(w, TriggerResponse{
			Queued:  false,
			Message: "A sync is already pending",
		}, http.StatusConflict)
		return
	}
	slog.InfoContext(r.Context(), "Sync queued through the API")
	common.WriteJSONResponse(w, TriggerResponse{
		Queued:  true,
		Message: "Sync queued",
	}, http.StatusAccepted)
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc service.SyncService) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler reports that the process is up
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once a reconciliation run has succeeded
func readinessHandler(svc service.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

// versionHandler returns build version information
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
