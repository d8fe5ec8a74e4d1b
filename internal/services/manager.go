package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"webcamdetector/internal/config"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/metrics"
	"webcamdetector/internal/models"
	"webcamdetector/internal/repository"
	"webcamdetector/internal/services/camera"
	"webcamdetector/internal/services/detection"
	"webcamdetector/internal/services/storage"
	"webcamdetector/internal/services/ui"
	"webcamdetector/internal/services/websocket"

	"github.com/disintegration/imaging"
)

// ErrSessionStopped is returned when capture is requested after Stop.
var ErrSessionStopped = errors.New("detection session stopped")

// Detector is the inference engine driven by the session.
type Detector interface {
	detection.Detector
	SetScoreThreshold(v float64)
	Annotate(img image.Image, detections []models.Detection) ([]byte, error)
}

// Manager owns the detection session: detector, video sink, capture and the running loop.
type Manager struct {
	detector   Detector
	mode       *detection.ModeSwitch
	sink       *camera.VideoSink
	capture    *camera.CaptureSession
	enumerator *camera.Enumerator
	prefs      repository.PreferenceRepository
	panel      *ui.Panel
	hub        *websocket.HubService
	buffer     *storage.BufferService
	metrics    *metrics.Metrics
	logger     *logger.Logger

	displayFPS     int
	viewerMaxWidth int

	captureMu    sync.Mutex // Serializes camera switches
	ctx          context.Context
	loopCancel   context.CancelFunc
	loopDone     chan struct{}
	activeStream string
	stopped      bool
}

type viewerMessage struct {
	Camera      string             `json:"camera"`
	TimestampMs int64              `json:"timestamp_ms"`
	Detections  []models.Detection `json:"detections"`
	Image       string             `json:"image"`
}

func NewManager(cfg *config.Config, detector Detector, platform camera.Platform, prefs repository.PreferenceRepository, hub *websocket.HubService, buffer *storage.BufferService, metrics *metrics.Metrics, logger *logger.Logger) *Manager {
	sink := camera.NewVideoSink(logger)
	defaults := camera.Constraints{
		FacingMode:       cfg.CaptureFacingMode,
		MaxWidth:         cfg.CaptureMaxWidth,
		MaxHeight:        cfg.CaptureMaxHeight,
		IdealAspectRatio: cfg.CaptureAspectRatio,
	}

	m := &Manager{
		detector:       detector,
		mode:           detection.NewModeSwitch(detector),
		sink:           sink,
		capture:        camera.NewCaptureSession(platform, sink, defaults, logger),
		enumerator:     camera.NewEnumerator(platform, prefs, logger),
		prefs:          prefs,
		panel:          ui.NewPanel(strconv.FormatFloat(cfg.ScoreThreshold, 'f', -1, 64)),
		hub:            hub,
		buffer:         buffer,
		metrics:        metrics,
		logger:         logger,
		displayFPS:     cfg.DisplayFPS,
		viewerMaxWidth: cfg.ViewerMaxWidth,
		ctx:            context.Background(),
	}
	sink.OnEnded(m.streamEnded)
	return m
}

// Bootstrap runs once the detector is ready: fills the camera list, enables
// the persisted camera and hides the loading indicator. Loops started later
// stop when ctx is cancelled.
func (m *Manager) Bootstrap(ctx context.Context) {
	m.captureMu.Lock()
	m.ctx = ctx
	m.captureMu.Unlock()

	m.ListCameras(ctx)
	if err := m.EnableCam(ctx); err != nil {
		m.logger.Error("Failed to enable camera: %v", err)
	}
	m.panel.HideLoading()
}

// EnableCam starts capture on the persisted camera, or the default one when none is stored.
func (m *Manager) EnableCam(ctx context.Context) error {
	deviceID, _, err := m.prefs.Get(camera.PreferenceCameraID)
	if err != nil {
		m.logger.Warning("Could not read persisted camera id: %v", err)
		deviceID = ""
	}
	return m.startCapture(ctx, deviceID)
}

// ListCameras rebuilds the camera select list. On failure the list stays empty.
func (m *Manager) ListCameras(ctx context.Context) []models.CameraOption {
	m.panel.ClearCameras()

	options, err := m.enumerator.List(ctx)
	if err != nil {
		m.logger.Error("Error accessing media devices: %v", err)
		return []models.CameraOption{}
	}

	m.panel.SetCameras(options)
	return options
}

// RefreshCameras probes camera access so labels become available, then re-enumerates.
func (m *Manager) RefreshCameras(ctx context.Context) []models.CameraOption {
	if err := m.capture.Probe(ctx); err != nil {
		m.logger.Warning("Camera probe failed, listing known devices: %v", err)
	}
	return m.ListCameras(ctx)
}

// ChangeThreshold applies the leading number of raw to the detector and shows
// raw verbatim in the label. Input without a leading number yields NaN.
func (m *Manager) ChangeThreshold(raw string) float64 {
	value := parseLeadingFloat(raw)
	m.detector.SetScoreThreshold(value)
	m.panel.SetThreshold(raw)
	m.logger.Info("Confidence threshold set to %v (input %q)", value, raw)
	return value
}

// ChangeCamera persists deviceID and restarts capture on it.
func (m *Manager) ChangeCamera(ctx context.Context, deviceID string) error {
	if err := m.prefs.Set(camera.PreferenceCameraID, deviceID); err != nil {
		m.logger.Warning("Could not persist camera id %s: %v", deviceID, err)
	}
	m.panel.SelectCamera(deviceID)
	return m.startCapture(ctx, deviceID)
}

// startCapture stops the running loop and stream, opens deviceID and arms a
// new loop that starts on the stream's first frame.
func (m *Manager) startCapture(ctx context.Context, deviceID string) error {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()

	if m.stopped {
		return ErrSessionStopped
	}

	m.stopLoopLocked()
	m.capture.Close()
	m.activeStream = ""
	m.panel.SetStreaming(false, "")

	loaded, err := m.capture.Open(ctx, deviceID)
	if err != nil {
		m.metrics.CaptureErrors.Add(1)
		m.logger.Error("%v", err)
		return err
	}
	m.metrics.CameraSwitches.Add(1)

	active := m.sink.ActiveDeviceID()
	m.activeStream = m.sink.ActiveStreamID()
	m.panel.SetStreaming(true, active)

	loopCtx, cancel := context.WithCancel(m.ctx)
	done := make(chan struct{})
	m.loopCancel = cancel
	m.loopDone = done

	go m.runLoop(loopCtx, loaded, active, done)
	return nil
}

func (m *Manager) stopLoopLocked() {
	if m.loopCancel == nil {
		return
	}
	m.loopCancel()
	<-m.loopDone
	m.loopCancel = nil
	m.loopDone = nil
}

// streamEnded tears the session down when the active stream dies on its own.
func (m *Manager) streamEnded(stream camera.Stream, err error) {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()

	if m.activeStream == "" || stream.ID() != m.activeStream {
		return
	}
	m.stopLoopLocked()
	m.activeStream = ""
	m.panel.SetStreaming(false, "")
	m.metrics.CaptureErrors.Add(1)
	m.logger.Error("Camera %s stopped streaming: %v", stream.DeviceID(), err)
}

func (m *Manager) runLoop(ctx context.Context, loaded <-chan struct{}, cameraID string, done chan struct{}) {
	defer close(done)

	select {
	case <-loaded:
	case <-ctx.Done():
		return
	}

	scheduler := detection.NewTickerScheduler(m.displayFPS)
	defer scheduler.Stop()

	loop := detection.NewLoop(m.detector, m.mode, m.sink, scheduler, m.render(cameraID), m.metrics, m.logger)
	loop.Run(ctx)
}

// render annotates each result for viewers and keeps frames with detections as
// full resolution snapshots.
func (m *Manager) render(cameraID string) detection.RenderFunc {
	return func(frame image.Image, result models.DetectionResult) {
		viewers := m.hub.GetClientCount() > 0
		if !viewers && len(result.Detections) == 0 {
			return
		}

		var snapshot []byte
		if viewers {
			view, detections := m.fitForViewers(frame, result.Detections)
			data, err := m.detector.Annotate(view, detections)
			if err != nil {
				m.logger.Error("Failed to annotate frame: %v", err)
				return
			}
			m.SendToViewers(data, cameraID, result.TimestampMs, detections)
			if view.Bounds() == frame.Bounds() {
				snapshot = data
			}
		}

		if len(result.Detections) == 0 {
			return
		}
		if snapshot == nil {
			data, err := m.detector.Annotate(frame, result.Detections)
			if err != nil {
				m.logger.Error("Failed to annotate snapshot: %v", err)
				return
			}
			snapshot = data
		}
		m.buffer.Add(snapshot, cameraID, result.Detections)
	}
}

// fitForViewers downsizes frames wider than the viewer limit and scales boxes to match.
func (m *Manager) fitForViewers(frame image.Image, detections []models.Detection) (image.Image, []models.Detection) {
	bounds := frame.Bounds()
	if m.viewerMaxWidth <= 0 || bounds.Dx() <= m.viewerMaxWidth {
		return frame, detections
	}

	resized := imaging.Fit(frame, m.viewerMaxWidth, bounds.Dy(), imaging.Linear)
	scale := float64(resized.Bounds().Dx()) / float64(bounds.Dx())

	scaled := make([]models.Detection, len(detections))
	for i, d := range detections {
		d.X = int(math.Round(float64(d.X) * scale))
		d.Y = int(math.Round(float64(d.Y) * scale))
		d.Width = int(math.Round(float64(d.Width) * scale))
		d.Height = int(math.Round(float64(d.Height) * scale))
		scaled[i] = d
	}
	return resized, scaled
}

// SendToViewers broadcasts an annotated JPEG with its detections.
func (m *Manager) SendToViewers(jpeg []byte, cameraID string, timestampMs int64, detections []models.Detection) {
	msg, err := json.Marshal(viewerMessage{
		Camera:      cameraID,
		TimestampMs: timestampMs,
		Detections:  detections,
		Image:       base64.StdEncoding.EncodeToString(jpeg),
	})
	if err != nil {
		m.logger.Error("Failed to encode viewer message: %v", err)
		return
	}
	m.hub.Broadcast(msg)
}

func (m *Manager) GetPanel() *ui.Panel {
	return m.panel
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.hub
}

func (m *Manager) GetBufferService() *storage.BufferService {
	return m.buffer
}

// ActiveCamera returns the device id of the stream feeding the video sink.
func (m *Manager) ActiveCamera() string {
	return m.sink.ActiveDeviceID()
}

// Stop cancels the running loop and stops the active stream. Later capture
// requests fail with ErrSessionStopped.
func (m *Manager) Stop() {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()

	m.stopped = true
	m.stopLoopLocked()
	m.capture.Close()
	m.activeStream = ""
	m.panel.SetStreaming(false, "")
	m.logger.Info("Detection session stopped")
}

var leadingFloat = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

// parseLeadingFloat reads the longest numeric prefix of s, ignoring leading
// whitespace. It returns NaN when s does not start with a number.
func parseLeadingFloat(s string) float64 {
	match := leadingFloat.FindString(strings.TrimLeft(s, " \t\n\r\f\v"))
	if match == "" {
		return math.NaN()
	}

	// Out of range values come back as ±Inf, which is what we want.
	value, err := strconv.ParseFloat(match, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return value
}
