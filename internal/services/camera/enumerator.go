package camera

import (
	"context"
	"fmt"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/models"
	"webcamdetector/internal/repository"
)

// Enumerator builds the camera select list from the platform's video inputs.
type Enumerator struct {
	platform Platform
	prefs    repository.PreferenceRepository
	logger   *logger.Logger
}

func NewEnumerator(platform Platform, prefs repository.PreferenceRepository, logger *logger.Logger) *Enumerator {
	return &Enumerator{
		platform: platform,
		prefs:    prefs,
		logger:   logger,
	}
}

// List returns one option per video input, in platform order.
// Devices without a label (no permission yet) are named "camera N".
func (e *Enumerator) List(ctx context.Context) ([]models.CameraOption, error) {
	devices, err := e.platform.EnumerateDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	selectedID := e.persistedCameraID()

	options := make([]models.CameraOption, 0, len(devices))
	for _, device := range devices {
		if device.Kind != models.DeviceKindVideoInput {
			continue
		}

		label := device.Label
		if label == "" {
			label = fmt.Sprintf("camera %d", len(options)+1)
		}

		options = append(options, models.CameraOption{
			Label:    label,
			DeviceID: device.DeviceID,
			Selected: selectedID != "" && selectedID == device.DeviceID,
		})
	}

	e.logger.Debug("Enumerated %d video inputs out of %d devices", len(options), len(devices))
	return options, nil
}

func (e *Enumerator) persistedCameraID() string {
	if e.prefs == nil {
		return ""
	}
	id, _, err := e.prefs.Get(PreferenceCameraID)
	if err != nil {
		e.logger.Warning("Could not read persisted camera id: %v", err)
		return ""
	}
	return id
}
