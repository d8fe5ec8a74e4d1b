package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"webcamdetector/internal/config"
	"webcamdetector/internal/models"
	"webcamdetector/internal/repository/sqlite"
	"webcamdetector/internal/services/storage"

	"github.com/joho/godotenv"
)

// Indexes snapshot files that are on disk but missing from the database,
// for example after the database file was deleted.
func main() {
	godotenv.Load()
	cfg := config.Load()

	snapshotsDir := flag.String("snapshots", cfg.SnapshotDirectory, "Directory containing snapshots")
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	flag.Parse()

	fmt.Printf("Indexing snapshots from %s into database %s\n", *snapshotsDir, *dbPath)

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	files, err := os.ReadDir(*snapshotsDir)
	if err != nil {
		log.Fatalf("Failed to read snapshot directory: %v", err)
	}

	snapshotRepo := sqlite.NewSnapshotRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	indexed, skipped := 0, 0
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".jpg" {
			continue
		}

		timestamp, camera, labels, err := storage.ParseSnapshotFilename(file.Name())
		if err != nil {
			log.Printf("Skipping %s: %v", file.Name(), err)
			skipped++
			continue
		}

		info, err := file.Info()
		if err != nil {
			log.Printf("Failed to get info for %s: %v", file.Name(), err)
			skipped++
			continue
		}

		id, err := snapshotRepo.Insert(&models.Snapshot{
			Filename:  file.Name(),
			Camera:    camera,
			Timestamp: timestamp,
			FilePath:  filepath.Join(*snapshotsDir, file.Name()),
			FileSize:  info.Size(),
		})
		if err != nil {
			// Already indexed files hit the unique filename constraint.
			skipped++
			continue
		}

		// Only labels survive in the file name; boxes and scores are lost.
		detections := make([]models.Detection, len(labels))
		for i, label := range labels {
			detections[i] = models.Detection{SnapshotID: id, Label: label, ClassID: -1}
		}
		if err := detectionRepo.InsertBatch(detections); err != nil {
			log.Printf("Failed to insert detections for %s: %v", file.Name(), err)
		}
		indexed++
	}

	fmt.Printf("Indexed %d snapshots, skipped %d\n", indexed, skipped)
}
