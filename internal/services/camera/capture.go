package camera

import (
	"context"
	"fmt"
	"webcamdetector/internal/logger"
)

// CaptureSession negotiates streams with the platform and attaches them to the sink.
type CaptureSession struct {
	platform Platform
	sink     *VideoSink
	defaults Constraints
	logger   *logger.Logger
}

// NewCaptureSession uses defaults for every request; only DeviceID varies per call.
func NewCaptureSession(platform Platform, sink *VideoSink, defaults Constraints, logger *logger.Logger) *CaptureSession {
	return &CaptureSession{
		platform: platform,
		sink:     sink,
		defaults: defaults,
		logger:   logger,
	}
}

// Constraints returns the request used for deviceID.
func (c *CaptureSession) Constraints(deviceID string) Constraints {
	constraints := c.defaults
	constraints.DeviceID = deviceID
	return constraints
}

// Open requests a stream for deviceID (empty for the default camera) and attaches it.
// The returned channel closes once the first frame is decoded.
func (c *CaptureSession) Open(ctx context.Context, deviceID string) (<-chan struct{}, error) {
	constraints := c.Constraints(deviceID)

	stream, err := c.platform.GetUserMedia(ctx, constraints)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %q: %w", deviceID, err)
	}

	c.logger.Info("Opened stream %s on device %s (max %dx%d, facing %s)",
		stream.ID(), stream.DeviceID(), constraints.MaxWidth, constraints.MaxHeight, constraints.FacingMode)

	return c.sink.Attach(stream), nil
}

// Probe opens and immediately stops a generic stream so device labels and modes are refreshed.
func (c *CaptureSession) Probe(ctx context.Context) error {
	stream, err := c.platform.GetUserMedia(ctx, Constraints{})
	if err != nil {
		return fmt.Errorf("failed to probe camera access: %w", err)
	}
	return stream.Stop()
}

// Close detaches and stops the active stream.
func (c *CaptureSession) Close() {
	c.sink.Detach()
}
