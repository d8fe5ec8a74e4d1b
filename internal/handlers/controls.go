package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/services"
)

// PanelHandler returns the current page state.
func PanelHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, manager.GetPanel().Snapshot(), logger)
	}
}

// ThresholdHandler handles POST /api/threshold with form field "value".
func ThresholdHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		manager.ChangeThreshold(r.FormValue("value"))
		writeJSON(w, manager.GetPanel().Snapshot(), logger)
	}
}

// CamerasHandler returns the camera select list.
func CamerasHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, manager.GetPanel().Snapshot().Cameras, logger)
	}
}

// SelectCameraHandler handles POST /api/cameras/select with form field "deviceId".
func SelectCameraHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		deviceID := r.FormValue("deviceId")
		if deviceID == "" {
			http.Error(w, "deviceId is required", http.StatusBadRequest)
			return
		}

		if err := manager.ChangeCamera(r.Context(), deviceID); err != nil {
			http.Error(w, "Failed to open camera", http.StatusInternalServerError)
			return
		}
		writeJSON(w, manager.GetPanel().Snapshot(), logger)
	}
}

// RefreshCamerasHandler re-probes camera access and returns the rebuilt list.
func RefreshCamerasHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, manager.RefreshCameras(r.Context()), logger)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
