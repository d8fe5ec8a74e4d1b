package models

import "time"

// DeviceKind mirrors the media device kinds reported by the platform.
type DeviceKind string

const (
	DeviceKindVideoInput DeviceKind = "videoinput"
	DeviceKindAudioInput DeviceKind = "audioinput"
)

// MediaDevice is a device reported by camera enumeration.
type MediaDevice struct {
	DeviceID string     `json:"device_id"`
	Kind     DeviceKind `json:"kind"`
	Label    string     `json:"label"`
}

// CameraOption is one entry of the camera select list.
type CameraOption struct {
	Label    string `json:"label"`
	DeviceID string `json:"device_id"`
	Selected bool   `json:"selected"`
}

// Snapshot is a stored annotated frame that contained detections.
type Snapshot struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Camera    string    `json:"camera"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"filepath"`
	FileSize  int64     `json:"filesize"`
	Objects   []string  `json:"objects,omitempty"`
}
