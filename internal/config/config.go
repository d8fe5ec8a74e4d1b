package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Port     int
	Password string // Empty disables the login cookie check

	ModelPath       string
	ModelConfigPath string
	LabelsPath      string // Optional YAML class map, built-in COCO labels otherwise
	Delegate        string // "CPU" or "GPU"
	ScoreThreshold  float64

	DisplayFPS         int // Rate of the detection loop scheduler
	CaptureMaxWidth    int
	CaptureMaxHeight   int
	CaptureAspectRatio float64
	CaptureFacingMode  string

	DatabasePath          string
	SnapshotDirectory     string
	SnapshotBufferLimit   int
	SnapshotFlushInterval int // Seconds
	ViewerMaxWidth        int

	LogDirectory string
	LogLevel     string
}

func Load() *Config {
	return &Config{
		Port:     getEnvAsInt("PORT", 8080),
		Password: getEnv("PASSWORD", ""),

		ModelPath:       getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ModelConfigPath: getEnv("MODEL_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v2_coco.pbtxt")),
		LabelsPath:      getEnv("LABELS_PATH", ""),
		Delegate:        strings.ToUpper(getEnv("DELEGATE", "GPU")),
		ScoreThreshold:  getEnvAsFloat("SCORE_THRESHOLD", 0.35),

		DisplayFPS:         getEnvAsInt("DISPLAY_FPS", 60),
		CaptureMaxWidth:    getEnvAsInt("CAPTURE_MAX_WIDTH", 1920),
		CaptureMaxHeight:   getEnvAsInt("CAPTURE_MAX_HEIGHT", 1080),
		CaptureAspectRatio: getEnvAsFloat("CAPTURE_ASPECT_RATIO", 1.0),
		CaptureFacingMode:  getEnv("CAPTURE_FACING_MODE", "environment"),

		DatabasePath:          getEnv("DB_PATH", filepath.Join(".", "webcamdetector.db")),
		SnapshotDirectory:     getEnv("SNAPSHOT_DIR", filepath.Join(".", "snapshots")),
		SnapshotBufferLimit:   getEnvAsInt("SNAPSHOT_BUFFER_LIMIT", 10),
		SnapshotFlushInterval: getEnvAsInt("SNAPSHOT_FLUSH_INTERVAL", 30),
		ViewerMaxWidth:        getEnvAsInt("VIEWER_MAX_WIDTH", 960),

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
