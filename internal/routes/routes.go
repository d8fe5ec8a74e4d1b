package routes

import (
	"net/http"
	"os"
	"path/filepath"
	"webcamdetector/internal/config"
	"webcamdetector/internal/handlers"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/metrics"
	"webcamdetector/internal/middleware"
	"webcamdetector/internal/services"
)

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", filepath.Clean(path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(manager *services.Manager, cfg *config.Config, metrics *metrics.Metrics, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Panel and controls
	mux.HandleFunc("/api/panel", handlers.PanelHandler(manager, logger))
	mux.HandleFunc("/api/threshold", handlers.ThresholdHandler(manager, logger))
	mux.HandleFunc("/api/cameras", handlers.CamerasHandler(manager, logger))
	mux.HandleFunc("/api/cameras/select", handlers.SelectCameraHandler(manager, logger))
	mux.HandleFunc("/api/cameras/refresh", handlers.RefreshCamerasHandler(manager, logger))

	// Viewers and snapshots
	mux.HandleFunc("/api/view", handlers.ViewWebsocketHandler(manager, logger))
	mux.HandleFunc("/api/snapshots", handlers.SnapshotsHandler(manager, logger))
	mux.HandleFunc("/api/snapshots/view", handlers.ViewSnapshotHandler(cfg))

	mux.Handle("/metrics", metrics.Handler())

	// Log endpoints
	for level, filename := range handlers.LogFiles {
		mux.HandleFunc("/logs/"+level, handlers.ShowLogsHandler(cfg, filename))
		mux.HandleFunc("/logs/"+level+"/clear", handlers.ClearLogsHandler(logger, filename))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handlers.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handlers.LogoutHandler)

	// Automatic HTML handler mapping for example: /login -> /static/login.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return middleware.AuthMiddleware(cfg, mux)
}
