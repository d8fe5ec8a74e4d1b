package models

// Detection represents a detected object in a frame or a stored snapshot.
type Detection struct {
	ID         int64   `json:"id,omitempty"`
	SnapshotID int64   `json:"snapshot_id,omitempty"`
	Label      string  `json:"label"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// DetectionResult is the output of one inference call.
type DetectionResult struct {
	TimestampMs int64       `json:"timestamp_ms"`
	Detections  []Detection `json:"detections"`
}

// RunningMode selects single-image or streaming-video inference.
type RunningMode string

const (
	RunningModeImage RunningMode = "IMAGE"
	RunningModeVideo RunningMode = "VIDEO"
)

// Delegate selects the hardware backend for inference.
type Delegate string

const (
	DelegateCPU Delegate = "CPU"
	DelegateGPU Delegate = "GPU"
)

// DetectorOptions configures a detector at creation time.
type DetectorOptions struct {
	ModelAssetPath  string
	ModelConfigPath string
	LabelsPath      string
	Delegate        Delegate
	ScoreThreshold  float64
	RunningMode     RunningMode
}
