package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"webcamdetector/internal/config"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/models"
	"webcamdetector/internal/repository"
)

const (
	timestampLayout = "2006-01-02_15-04_05.000"
	// Frames sharing a millisecond get .2, .3, ... before the extension.
	maxNameSequence = 1000
)

// BufferedSnapshot is an annotated frame waiting to be flushed.
type BufferedSnapshot struct {
	Timestamp  time.Time
	Camera     string
	Detections []models.Detection
	Data       []byte
}

// BufferService buffers annotated frames in memory and periodically flushes them to disk and the database.
type BufferService struct {
	snapshotsDir  string
	bufferLimit   int
	flushInterval time.Duration
	snapshots     []BufferedSnapshot
	bufferCount   map[string]int
	mu            sync.Mutex
	flushMu       sync.Mutex // Serializes flushes; mu is only held to swap the buffer
	logger        *logger.Logger
	snapshotRepo  repository.SnapshotRepository
	detectionRepo repository.DetectionRepository
}

func NewBufferService(config *config.Config, logger *logger.Logger, snapshotRepo repository.SnapshotRepository, detectionRepo repository.DetectionRepository) *BufferService {
	interval := time.Duration(config.SnapshotFlushInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &BufferService{
		snapshotsDir:  config.SnapshotDirectory,
		bufferLimit:   config.SnapshotBufferLimit,
		flushInterval: interval,
		snapshots:     make([]BufferedSnapshot, 0),
		bufferCount:   make(map[string]int),
		logger:        logger,
		snapshotRepo:  snapshotRepo,
		detectionRepo: detectionRepo,
	}
}

// Run flushes the buffer on every tick and once more when ctx is done.
func (s *BufferService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-ctx.Done():
			s.Flush()
			return
		}
	}
}

// Add buffers a frame for camera. Frames beyond the per-camera limit are dropped until the next flush.
func (s *BufferService) Add(data []byte, camera string, detections []models.Detection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bufferCount[camera] >= s.bufferLimit {
		return false
	}

	s.snapshots = append(s.snapshots, BufferedSnapshot{
		Timestamp:  time.Now(),
		Camera:     camera,
		Detections: append([]models.Detection(nil), detections...),
		Data:       data,
	})
	s.bufferCount[camera]++
	s.logger.Debug("Snapshot buffer for camera %s: %d/%d", camera, s.bufferCount[camera], s.bufferLimit)
	return true
}

// Pending returns the number of buffered frames.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// Flush writes buffered frames to disk, records them with their detections and resets the buffer.
// Frames added while a flush is writing go to the next flush.
func (s *BufferService) Flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if s.Pending() == 0 {
		return
	}

	if err := os.MkdirAll(s.snapshotsDir, 0755); err != nil {
		s.logger.Error("Error creating snapshot directory: %v", err)
		return
	}

	s.mu.Lock()
	snapshots := s.snapshots
	s.snapshots = make([]BufferedSnapshot, 0, len(snapshots))
	s.bufferCount = make(map[string]int)
	s.mu.Unlock()

	savedCount := 0
	for _, snapshot := range snapshots {
		filename, fullpath, err := s.write(snapshot)
		if err != nil {
			s.logger.Error("Error saving snapshot %s: %v", snapshotFilename(snapshot, 1), err)
			continue
		}

		if err := s.record(snapshot, filename, fullpath); err != nil {
			s.logger.Error("Error recording snapshot %s: %v", filename, err)
			continue
		}
		savedCount++
	}

	s.logger.Info("Flushed %d snapshots to disk", savedCount)
}

// write stores snapshot under the first file name not taken yet.
func (s *BufferService) write(snapshot BufferedSnapshot) (string, string, error) {
	for seq := 1; seq <= maxNameSequence; seq++ {
		filename := snapshotFilename(snapshot, seq)
		fullpath := filepath.Join(s.snapshotsDir, filename)

		file, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", err
		}

		_, err = file.Write(snapshot.Data)
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		return filename, fullpath, err
	}
	return "", "", fmt.Errorf("no free file name after %d attempts", maxNameSequence)
}

func (s *BufferService) record(snapshot BufferedSnapshot, filename, fullpath string) error {
	if s.snapshotRepo == nil {
		return nil
	}

	id, err := s.snapshotRepo.Insert(&models.Snapshot{
		Filename:  filename,
		Camera:    snapshot.Camera,
		Timestamp: snapshot.Timestamp,
		FilePath:  fullpath,
		FileSize:  int64(len(snapshot.Data)),
	})
	if err != nil {
		return err
	}

	if s.detectionRepo == nil || len(snapshot.Detections) == 0 {
		return nil
	}

	detections := make([]models.Detection, len(snapshot.Detections))
	for i, d := range snapshot.Detections {
		d.SnapshotID = id
		detections[i] = d
	}
	return s.detectionRepo.InsertBatch(detections)
}

// Recent returns the newest flushed snapshots with their detected object names.
func (s *BufferService) Recent(limit int) ([]models.Snapshot, error) {
	if s.snapshotRepo == nil {
		return []models.Snapshot{}, nil
	}

	snapshots, err := s.snapshotRepo.GetRecent(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	if s.detectionRepo != nil {
		for i := range snapshots {
			labels, err := s.detectionRepo.GetLabelsBySnapshotID(snapshots[i].ID)
			if err != nil {
				s.logger.Warning("Failed to get labels for snapshot %d: %v", snapshots[i].ID, err)
				continue
			}
			snapshots[i].Objects = labels
		}
	}
	return snapshots, nil
}

// snapshotFilename builds 2006-01-02_15-04_05.000_camera_label1_label2.jpg,
// or ..._label2.<seq>.jpg when seq is above 1.
func snapshotFilename(s BufferedSnapshot, seq int) string {
	parts := []string{s.Timestamp.Format(timestampLayout), sanitize(s.Camera)}
	for _, d := range s.Detections {
		parts = append(parts, sanitize(d.Label))
	}
	name := strings.Join(parts, "_")
	if seq > 1 {
		name += "." + strconv.Itoa(seq)
	}
	return name + ".jpg"
}

// sanitize keeps letters, digits and dashes so device ids are safe in file names.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, s)
}

var ErrInvalidSnapshotName = errors.New("invalid snapshot name format")

// ParseSnapshotFilename reverses snapshotFilename, returning the capture time,
// sanitized camera id and detected labels.
func ParseSnapshotFilename(filename string) (time.Time, string, []string, error) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if i := strings.LastIndexByte(base, '.'); i > strings.LastIndexByte(base, '_') {
		if _, err := strconv.Atoi(base[i+1:]); err == nil {
			base = base[:i]
		}
	}
	parts := strings.Split(base, "_")

	// Format: [date, HH-MM, SS.mmm, camera, label1, label2, ...]
	if len(parts) < 4 {
		return time.Time{}, "", nil, ErrInvalidSnapshotName
	}

	ts, err := time.ParseInLocation(timestampLayout, strings.Join(parts[:3], "_"), time.Local)
	if err != nil {
		return time.Time{}, "", nil, fmt.Errorf("%w: %v", ErrInvalidSnapshotName, err)
	}
	return ts, parts[3], parts[4:], nil
}
