package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"falldetector/internal/config"
	"falldetector/internal/logger"
	"falldetector/internal/metrics"
	"falldetector/internal/repository/sqlite"
	"falldetector/internal/route"
	"falldetector/internal/service"
	"falldetector/internal/service/ai"
	"falldetector/internal/service/camera"
	"falldetector/internal/service/modelwatch"
	"falldetector/internal/service/storage"
	"falldetector/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config          *config.Config
	logger          *logger.Logger
	db              *sqlite.DB
	metrics         *metrics.Metrics
	detectorService *ai.DetectorService
	bufferService   *storage.BufferService
	hubService      *websocket.HubService
	watcher         *modelwatch.Watcher
	manager         *service.Manager
	server          *http.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open event database: %w", err)
	}
	eventRepo := sqlite.NewEventRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	m := metrics.New()
	detector := ai.NewDetectorService(cfg, log)
	buffer := storage.NewBufferService(cfg, log, eventRepo, detectionRepo)
	hub := websocket.NewHubService(log)
	mng := service.NewManager(cfg, camera.NewOpener(cfg, log), detector, buffer, hub, m, log)

	a := &App{
		config:          cfg,
		logger:          log,
		db:              db,
		metrics:         m,
		detectorService: detector,
		bufferService:   buffer,
		hubService:      hub,
		manager:         mng,
	}

	if cfg.ModelWatch {
		reload := func() error {
			err := detector.Reload()
			m.ObserveReload(err)
			return err
		}
		if a.watcher, err = modelwatch.New(detector.ModelPath(), reload, log); err != nil {
			log.Warning("Model hot reload disabled: %v", err)
		}
	}

	router := route.SetupRoutes(route.Dependencies{
		Pipeline:      mng,
		Buffer:        buffer,
		Hub:           hub,
		EventRepo:     eventRepo,
		DetectionRepo: detectionRepo,
		Metrics:       m,
	}, cfg, log)

	a.server = newServer(cfg.Addr(), router)

	return a, nil
}

// newServer builds the HTTP server. Request contexts derive from a context
// that Shutdown cancels, so long-lived MJPEG streams end instead of holding
// Shutdown until its deadline.
func newServer(addr string, handler http.Handler) *http.Server {
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}
	server.RegisterOnShutdown(cancelRequests)
	return server
}

// Run serves HTTP until ctx is cancelled, then drains requests and stops the
// background services. Buffered snapshots are flushed before it returns.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	start := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(bgCtx)
		}()
	}

	start(a.bufferService.Run)
	start(a.hubService.Run)
	if a.watcher != nil {
		start(a.watcher.Run)
	}

	a.logger.Info("🚀 Fall detection server listening on http://%s", a.config.Addr())
	a.logger.Info("📷 Camera: %s", a.config.CameraDevice)
	a.logger.Info("🤖 Model: %s (loaded: %t)", a.detectorService.ModelPath(), a.manager.ModelLoaded())
	a.logger.Info("📁 Snapshots: %s", a.config.SnapshotDirectory)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		a.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Error("HTTP shutdown: %v", shutdownErr)
			a.server.Close()
		}
		cancel()
	}

	stopBackground()
	wg.Wait()
	return err
}

// Close releases the model, the database and the log files.
func (a *App) Close() error {
	if a.watcher != nil {
		a.watcher.Close()
	}
	a.detectorService.Close()

	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = err
	}
	if err := a.logger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
