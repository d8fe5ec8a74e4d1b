package handlers

import (
	"net/http"
	"path/filepath"
	"webcamdetector/internal/config"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/services"
)

// SnapshotsHandler lists the most recent stored snapshots, newest first.
func SnapshotsHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := atoiDefault(r.URL.Query().Get("limit"), 24)

		snapshots, err := manager.GetBufferService().Recent(limit)
		if err != nil {
			logger.Error("Error querying snapshots: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, snapshots, logger)
	}
}

// ViewSnapshotHandler serves a single snapshot file named by the "filename" query parameter.
func ViewSnapshotHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := r.URL.Query().Get("filename")
		if filename == "" {
			http.Error(w, "Filename parameter is required", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.SnapshotDirectory, filepath.Base(filename)))
	}
}
