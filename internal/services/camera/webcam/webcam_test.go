package webcam

import (
	"errors"
	"testing"
	"webcamdetector/internal/services/camera"

	"github.com/pion/mediadevices/pkg/prop"
)

func mode(w, h int) prop.Media {
	return prop.Media{Video: prop.Video{Width: w, Height: h}}
}

func TestPickDevice(t *testing.T) {
	candidates := []candidate{
		{deviceID: "video0", running: true},
		{deviceID: "video1"},
		{deviceID: "video2"},
	}

	tests := []struct {
		name     string
		wanted   string
		expected int
	}{
		{"exact match", "video2", 2},
		{"empty uses first free", "", 1},
		{"unknown falls back", "video9", 1},
		{"busy wanted falls back", "video0", 1},
	}

	for _, tt := range tests {
		got, err := pickDevice(candidates, tt.wanted)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("%s: pickDevice(%q) = %d, expected %d", tt.name, tt.wanted, got, tt.expected)
		}
	}
}

func TestPickDevice_AllBusy(t *testing.T) {
	_, err := pickDevice([]candidate{{deviceID: "video0", running: true}}, "")
	if !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("Expected ErrDeviceBusy, got %v", err)
	}
}

func TestSelectMode_RespectsLimitsAndAspect(t *testing.T) {
	modes := []prop.Media{
		mode(3840, 2160),
		mode(1920, 1080),
		mode(640, 480),
		mode(1080, 1080),
		mode(320, 320),
	}
	constraints := camera.Constraints{MaxWidth: 1920, MaxHeight: 1080, IdealAspectRatio: 1.0}

	got, err := selectMode(modes, constraints)
	if err != nil {
		t.Fatalf("selectMode failed: %v", err)
	}
	if got.Width != 1080 || got.Height != 1080 {
		t.Errorf("Expected 1080x1080, got %dx%d", got.Width, got.Height)
	}
}

func TestSelectMode_NoAspectPrefersLargest(t *testing.T) {
	modes := []prop.Media{mode(640, 480), mode(1280, 720), mode(3840, 2160)}

	got, err := selectMode(modes, camera.Constraints{MaxWidth: 1920, MaxHeight: 1080})
	if err != nil {
		t.Fatalf("selectMode failed: %v", err)
	}
	if got.Width != 1280 {
		t.Errorf("Expected 1280x720, got %dx%d", got.Width, got.Height)
	}
}

func TestSelectMode_NothingFits(t *testing.T) {
	_, err := selectMode([]prop.Media{mode(3840, 2160)}, camera.Constraints{MaxWidth: 1920, MaxHeight: 1080})
	if err == nil {
		t.Error("Expected error when no mode fits")
	}
}
