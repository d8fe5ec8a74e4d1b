package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"webcamdetector/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarning, false},
		{"warn", LevelWarning, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		level, err := ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if level != tt.expected {
			t.Errorf("ParseLevel(%q) = %d, expected %d", tt.input, level, tt.expected)
		}
	}
}

func TestLogger_WritesAndCleansFiles(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(&config.Config{LogDirectory: dir, LogLevel: "info"})

	l.Info("camera %s opened", "cam-1")
	l.Debug("not written to files")

	data, err := os.ReadFile(filepath.Join(dir, "info.log"))
	if err != nil {
		t.Fatalf("Failed to read info.log: %v", err)
	}
	if !strings.Contains(string(data), "camera cam-1 opened") {
		t.Errorf("Expected info entry in info.log, got %q", string(data))
	}

	if err := l.CleanLogs("error.log"); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}
	data, err = os.ReadFile(filepath.Join(dir, "error.log"))
	if err != nil {
		t.Fatalf("Failed to read error.log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected error.log to be empty, got %d bytes", len(data))
	}
}

func TestLogger_LevelFiltersInfo(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(&config.Config{LogDirectory: dir, LogLevel: "error"})

	l.Info("hidden")
	l.Warning("hidden too")

	data, err := os.ReadFile(filepath.Join(dir, "info.log"))
	if err != nil {
		t.Fatalf("Failed to read info.log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected no info output at error level, got %q", string(data))
	}
}
