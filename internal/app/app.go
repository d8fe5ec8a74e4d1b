package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"webcamdetector/internal/config"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/metrics"
	"webcamdetector/internal/models"
	"webcamdetector/internal/repository/sqlite"
	"webcamdetector/internal/routes"
	"webcamdetector/internal/services"
	"webcamdetector/internal/services/ai"
	"webcamdetector/internal/services/camera/webcam"
	"webcamdetector/internal/services/storage"
	"webcamdetector/internal/services/websocket"
)

type App struct {
	config        *config.Config
	logger        *logger.Logger
	metrics       *metrics.Metrics
	db            *sqlite.DB
	detector      *ai.DetectorService
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	manager       *services.Manager
}

// NewApp opens the database and loads the detector. A detector that cannot be
// created is fatal for the caller.
func NewApp(cfg *config.Config) (*App, error) {
	log := logger.NewLogger(cfg)

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	log.Info("Database initialized at %s", cfg.DatabasePath)

	detector, err := ai.CreateFromOptions(models.DetectorOptions{
		ModelAssetPath:  cfg.ModelPath,
		ModelConfigPath: cfg.ModelConfigPath,
		LabelsPath:      cfg.LabelsPath,
		Delegate:        models.Delegate(cfg.Delegate),
		ScoreThreshold:  cfg.ScoreThreshold,
		RunningMode:     models.RunningModeImage,
	}, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create object detector: %w", err)
	}

	m := metrics.New()
	prefs := sqlite.NewPreferenceRepository(db)
	buffer := storage.NewBufferService(cfg, log, sqlite.NewSnapshotRepository(db), sqlite.NewDetectionRepository(db))
	hub := websocket.NewHubService(m, log)
	mng := services.NewManager(cfg, detector, webcam.NewPlatform(log), prefs, hub, buffer, m, log)

	return &App{
		config:        cfg,
		logger:        log,
		metrics:       m,
		db:            db,
		detector:      detector,
		bufferService: buffer,
		hubService:    hub,
		manager:       mng,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.bufferService.Run(ctx)
	go a.hubService.Run(ctx)
	bootstrapped := make(chan struct{})
	go func() {
		defer close(bootstrapped)
		a.manager.Bootstrap(ctx)
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: routes.SetupRoutes(a.manager, a.config, a.metrics, a.logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP server shutdown: %v", err)
		}
	}()

	a.logger.Info("Webcam detector listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Model: %s (delegate %s, threshold %v)", a.config.ModelPath, a.config.Delegate, a.config.ScoreThreshold)
	a.logger.Info("Snapshots: %s", a.config.SnapshotDirectory)
	if a.config.Password == "" {
		a.logger.Warning("PASSWORD is empty, authentication is disabled")
	}

	err := server.ListenAndServe()
	cancel()
	<-bootstrapped
	a.close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) close() {
	a.manager.Stop()
	a.bufferService.Flush()
	if err := a.detector.Close(); err != nil {
		a.logger.Warning("Error closing detector: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warning("Error closing database: %v", err)
	}
}
