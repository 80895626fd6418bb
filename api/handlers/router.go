package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mediaCompressor/api/dto"
	"mediaCompressor/api/middleware"
)

// NewRouter wires the task routes, health and metrics behind the trace, logging and
// recovery middleware.
func NewRouter(h *TaskHandler, version string, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.TraceID, middleware.Logging(logger), middleware.Recovery(logger))

	r.HandleFunc("/upload/{kind}", h.Upload).Methods(http.MethodPost)
	r.HandleFunc("/task/{id}", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/download/{id}", h.Download).Methods(http.MethodGet)
	r.HandleFunc("/health", Health(version)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func Health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(dto.HealthResponse{Status: "ok", Version: version})
	}
}
