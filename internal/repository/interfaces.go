package repository

import (
	"webcamdetector/internal/models"
)

// PreferenceRepository is a persistent string key-value store.
type PreferenceRepository interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// SnapshotRepository defines the interface for snapshot data operations.
type SnapshotRepository interface {
	Insert(s *models.Snapshot) (int64, error)
	GetByID(id int64) (*models.Snapshot, error)
	GetRecent(limit int) ([]models.Snapshot, error)
	Delete(id int64) error
}

// DetectionRepository defines the interface for detection data operations.
type DetectionRepository interface {
	InsertBatch(detections []models.Detection) error
	GetBySnapshotID(snapshotID int64) ([]models.Detection, error)
	GetLabelsBySnapshotID(snapshotID int64) ([]string, error)
}
