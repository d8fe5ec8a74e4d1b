// Package camera enumerates video inputs and manages the active capture stream.
package camera

import (
	"context"
	"errors"
	"image"
	"webcamdetector/internal/models"
)

// PreferenceCameraID is the preference key holding the last selected device id.
const PreferenceCameraID = "cameraId"

var (
	ErrNoDevices     = errors.New("no video input devices found")
	ErrStreamStopped = errors.New("stream stopped")
)

// Constraints describe the stream requested from the platform.
// A zero value asks for any video input with its default mode.
type Constraints struct {
	DeviceID         string // Ideal, not exact: unknown ids fall back to the first device
	FacingMode       string
	MaxWidth         int
	MaxHeight        int
	IdealAspectRatio float64
}

// Stream is an open video stream from one device.
type Stream interface {
	ID() string
	DeviceID() string
	// ReadFrame blocks until the next decoded frame. It returns ErrStreamStopped once Stop was called.
	ReadFrame() (image.Image, error)
	Stop() error
}

// Platform is the media capture stack.
type Platform interface {
	EnumerateDevices(ctx context.Context) ([]models.MediaDevice, error)
	GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error)
}
