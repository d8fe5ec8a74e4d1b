package ai

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sync"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/models"
	"webcamdetector/internal/services/ai/labels"

	"gocv.io/x/gocv"
)

const (
	// Input size expected by the SSD MobileNet family.
	inputSize = 300
	// Each SSD output row is [batch, classId, confidence, left, top, right, bottom].
	detectionRowWidth = 7
)

var (
	ErrNetNotInitialized     = errors.New("detection network not initialized")
	ErrWrongRunningMode      = errors.New("detector is not in the required running mode")
	ErrTimestampNotMonotonic = errors.New("video timestamps must be strictly increasing")
	ErrUnknownRunningMode    = errors.New("unknown running mode")
)

// DetectorService wraps an OpenCV DNN object detector.
type DetectorService struct {
	mu              sync.Mutex
	net             gocv.Net
	opts            models.DetectorOptions
	labels          labels.Map
	lastTimestampMs int64
	logger          *logger.Logger
}

// CreateFromOptions loads the model and prepares the network for the requested delegate.
func CreateFromOptions(opts models.DetectorOptions, logger *logger.Logger) (*DetectorService, error) {
	if opts.RunningMode == "" {
		opts.RunningMode = models.RunningModeImage
	}
	if opts.RunningMode != models.RunningModeImage && opts.RunningMode != models.RunningModeVideo {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRunningMode, opts.RunningMode)
	}

	labelMap, err := labels.Load(opts.LabelsPath)
	if err != nil {
		return nil, err
	}

	service := &DetectorService{
		opts:            opts,
		labels:          labelMap,
		lastTimestampMs: -1,
		logger:          logger,
	}

	if err := service.initializeNet(); err != nil {
		return nil, err
	}

	return service, nil
}

// initializeNet reads the network from the model and optional config files.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.opts.ModelAssetPath); err != nil {
		return fmt.Errorf("model file not found: %s: %w", s.opts.ModelAssetPath, err)
	}

	if s.opts.ModelConfigPath != "" {
		if _, err := os.Stat(s.opts.ModelConfigPath); err != nil {
			return fmt.Errorf("model config file not found: %s: %w", s.opts.ModelConfigPath, err)
		}
	}

	net := gocv.ReadNet(s.opts.ModelAssetPath, s.opts.ModelConfigPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", s.opts.ModelAssetPath)
	}

	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if s.opts.Delegate == models.DelegateGPU {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}

	errBackend := net.SetPreferableBackend(backend)
	errTarget := net.SetPreferableTarget(target)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target for delegate %s", s.opts.Delegate)
	}

	s.net = net
	s.logger.Info("Detection network initialized from %s (delegate %s)", s.opts.ModelAssetPath, s.opts.Delegate)
	return nil
}

// Options returns a copy of the current options.
func (s *DetectorService) Options() models.DetectorOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// SetScoreThreshold applies v to the following inference calls. NaN is accepted and filters everything out.
func (s *DetectorService) SetScoreThreshold(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.ScoreThreshold = v
}

// SetRunningMode switches between single image and video inference.
func (s *DetectorService) SetRunningMode(mode models.RunningMode) error {
	if mode != models.RunningModeImage && mode != models.RunningModeVideo {
		return fmt.Errorf("%w: %s", ErrUnknownRunningMode, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.RunningMode == mode {
		return nil
	}

	s.logger.Info("Detector running mode %s -> %s", s.opts.RunningMode, mode)
	s.opts.RunningMode = mode
	s.lastTimestampMs = -1
	return nil
}

// Detect runs inference on a single image. Requires IMAGE mode.
func (s *DetectorService) Detect(img image.Image) (models.DetectionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.RunningMode != models.RunningModeImage {
		return models.DetectionResult{}, fmt.Errorf("%w: Detect needs %s", ErrWrongRunningMode, models.RunningModeImage)
	}
	return s.detectLocked(img, 0)
}

// DetectForVideo runs inference on a video frame captured at timestampMs. Requires VIDEO mode.
func (s *DetectorService) DetectForVideo(img image.Image, timestampMs int64) (models.DetectionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.RunningMode != models.RunningModeVideo {
		return models.DetectionResult{}, fmt.Errorf("%w: DetectForVideo needs %s", ErrWrongRunningMode, models.RunningModeVideo)
	}
	if timestampMs <= s.lastTimestampMs {
		return models.DetectionResult{}, fmt.Errorf("%w: %d after %d", ErrTimestampNotMonotonic, timestampMs, s.lastTimestampMs)
	}
	s.lastTimestampMs = timestampMs

	return s.detectLocked(img, timestampMs)
}

func (s *DetectorService) detectLocked(img image.Image, timestampMs int64) (models.DetectionResult, error) {
	result := models.DetectionResult{TimestampMs: timestampMs, Detections: []models.Detection{}}

	if s.net.Empty() {
		return result, ErrNetNotInitialized
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return result, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return result, fmt.Errorf("frame is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(inputSize, inputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")

	output := s.net.Forward("")
	defer output.Close()

	rows := output.Reshape(1, output.Total()/detectionRowWidth)
	defer rows.Close()

	threshold := s.opts.ScoreThreshold
	cols := float32(mat.Cols())
	height := float32(mat.Rows())

	for i := 0; i < rows.Rows(); i++ {
		confidence := float64(rows.GetFloatAt(i, 2))
		// NaN threshold fails the comparison, so nothing is reported.
		if math.IsNaN(threshold) || !(confidence > threshold) {
			continue
		}

		classID := int(rows.GetFloatAt(i, 1))
		x := int(rows.GetFloatAt(i, 3) * cols)
		y := int(rows.GetFloatAt(i, 4) * height)

		result.Detections = append(result.Detections, models.Detection{
			Label:      s.labels.Label(classID),
			ClassID:    classID,
			Confidence: confidence,
			X:          x,
			Y:          y,
			Width:      int(rows.GetFloatAt(i, 5)*cols) - x,
			Height:     int(rows.GetFloatAt(i, 6)*height) - y,
		})
	}

	if len(result.Detections) > 0 {
		s.logger.Debug("Detected %d objects at %d", len(result.Detections), timestampMs)
	}

	return result, nil
}

// Annotate draws detection boxes with labels on img and returns it JPEG encoded.
func (s *DetectorService) Annotate(img image.Image, detections []models.Detection) ([]byte, error) {
	green := color.RGBA{R: 0, G: 255, B: 0, A: 0}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	for _, detection := range detections {
		rect := image.Rect(detection.X, detection.Y, detection.X+detection.Width, detection.Y+detection.Height)
		if err := gocv.Rectangle(&mat, rect, green, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s (%.2f)", detection.Label, detection.Confidence)
		pt := image.Pt(detection.X, detection.Y-5)
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, green, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}
