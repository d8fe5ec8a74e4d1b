// Package detection runs the per-display-frame inference loop over the active video sink.
package detection

import (
	"context"
	"image"
	"sync"
	"time"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/metrics"
	"webcamdetector/internal/models"
)

// Detector is the part of the inference engine the loop drives.
type Detector interface {
	SetRunningMode(mode models.RunningMode) error
	DetectForVideo(img image.Image, timestampMs int64) (models.DetectionResult, error)
}

// FrameSource exposes the latest decoded frame and its media time in seconds.
type FrameSource interface {
	CurrentFrame() (img image.Image, currentTime float64, ok bool)
}

// RenderFunc receives every inference result with the frame it was computed on.
type RenderFunc func(frame image.Image, result models.DetectionResult)

// ModeSwitch moves a detector to VIDEO mode once for its whole lifetime.
// All loops driving the same detector must share one ModeSwitch.
type ModeSwitch struct {
	mu       sync.Mutex
	detector Detector
	switched bool
}

func NewModeSwitch(detector Detector) *ModeSwitch {
	return &ModeSwitch{detector: detector}
}

// Ensure switches to VIDEO mode on the first call and is a no-op afterwards,
// even when the first attempt failed.
func (m *ModeSwitch) Ensure() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.switched {
		return nil
	}
	m.switched = true
	return m.detector.SetRunningMode(models.RunningModeVideo)
}

// Switched reports whether the VIDEO switch already happened.
func (m *ModeSwitch) Switched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.switched
}

// Loop polls the frame source once per display frame and runs inference on new frames.
type Loop struct {
	detector  Detector
	mode      *ModeSwitch
	source    FrameSource
	scheduler FrameScheduler
	render    RenderFunc
	metrics   *metrics.Metrics
	logger    *logger.Logger

	lastVideoTime   float64
	lastTimestampMs int64
	now             func() time.Time
}

func NewLoop(detector Detector, mode *ModeSwitch, source FrameSource, scheduler FrameScheduler, render RenderFunc, metrics *metrics.Metrics, logger *logger.Logger) *Loop {
	return &Loop{
		detector:        detector,
		mode:            mode,
		source:          source,
		scheduler:       scheduler,
		render:          render,
		metrics:         metrics,
		logger:          logger,
		lastVideoTime:   -1,
		lastTimestampMs: -1,
		now:             time.Now,
	}
}

// Run steps the loop until ctx is cancelled. Only one inference is in flight at a time.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("Detection loop started")
	defer l.logger.Info("Detection loop stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		l.Step()

		if err := l.scheduler.NextFrame(ctx); err != nil {
			return
		}
	}
}

// Step runs one loop iteration and reports whether inference ran.
func (l *Loop) Step() bool {
	if err := l.mode.Ensure(); err != nil {
		l.logger.Error("Failed to switch detector to video mode: %v", err)
	}

	frame, currentTime, ok := l.source.CurrentFrame()
	if !ok || currentTime == l.lastVideoTime {
		l.metrics.SkippedTicks.Add(1)
		return false
	}
	l.lastVideoTime = currentTime

	// The detector rejects repeated timestamps, so keep them strictly increasing.
	nowMs := l.now().UnixMilli()
	if nowMs <= l.lastTimestampMs {
		nowMs = l.lastTimestampMs + 1
	}
	l.lastTimestampMs = nowMs

	start := time.Now()
	result, err := l.detector.DetectForVideo(frame, nowMs)
	l.metrics.ObserveInference(time.Since(start))
	l.metrics.Inferences.Add(1)

	if err != nil {
		l.metrics.InferenceErrors.Add(1)
		l.logger.Error("Inference failed at %d: %v", nowMs, err)
		return true
	}

	l.metrics.Detections.Add(uint64(len(result.Detections)))
	if l.render != nil {
		l.render(frame, result)
	}
	return true
}
