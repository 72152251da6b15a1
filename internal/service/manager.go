package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"falldetector/internal/config"
	"falldetector/internal/dto"
	"falldetector/internal/logger"
	"falldetector/internal/metrics"
	"falldetector/internal/service/camera"
	"falldetector/internal/service/storage"
	"falldetector/internal/service/websocket"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// Camera opens a frame source per request.
type Camera interface {
	Open() (camera.Capture, error)
	Device() string
}

// Detector runs the network on a frame and renders its results.
type Detector interface {
	Loaded() bool
	DetectObjects(frame gocv.Mat) ([]dto.DetectionResult, time.Duration, error)
	DrawRectangle(frame *gocv.Mat, detections []dto.DetectionResult) error
	EncodeJPEG(frame gocv.Mat) ([]byte, error)
}

// Manager runs the capture -> detect -> respond pipelines behind the HTTP handlers.
type Manager struct {
	camera           Camera
	detectorService  Detector
	bufferService    *storage.BufferService
	websocketService *websocket.HubService
	metrics          *metrics.Metrics
	logger           *logger.Logger

	cooldown      time.Duration
	frameInterval time.Duration

	eventMu   sync.Mutex
	lastEvent time.Time
}

func NewManager(cfg *config.Config, cam Camera, detectorService Detector, bufferService *storage.BufferService,
	websocketService *websocket.HubService, metrics *metrics.Metrics, logger *logger.Logger) *Manager {
	manager := &Manager{
		camera:           cam,
		detectorService:  detectorService,
		bufferService:    bufferService,
		websocketService: websocketService,
		metrics:          metrics,
		logger:           logger,
		cooldown:         cfg.Cooldown(),
	}
	if cfg.StreamMaxFPS > 0 {
		manager.frameInterval = time.Second / time.Duration(cfg.StreamMaxFPS)
	}
	return manager
}

// ModelLoaded reports whether inference is currently possible.
func (m *Manager) ModelLoaded() bool {
	return m.detectorService.Loaded()
}

// Predict captures exactly one frame, releases the camera and runs detection on it.
func (m *Manager) Predict(ctx context.Context) (dto.Prediction, error) {
	frame := gocv.NewMat()
	defer frame.Close()

	if err := m.captureOne(&frame); err != nil {
		m.metrics.CameraErrors.Inc()
		m.metrics.Predictions.WithLabelValues("camera_error").Inc()
		return dto.Prediction{}, err
	}
	m.metrics.FramesCaptured.Inc()

	if err := ctx.Err(); err != nil {
		return dto.Prediction{}, err
	}

	detections, elapsed, err := m.detectorService.DetectObjects(frame)
	if err != nil {
		m.metrics.Predictions.WithLabelValues("error").Inc()
		return dto.Prediction{}, fmt.Errorf("detection failed: %w", err)
	}
	m.metrics.ObserveInference(elapsed, len(detections))

	prediction := dto.Prediction{
		FallDetected: len(detections) > 0,
		Detections:   detections,
	}

	if prediction.FallDetected {
		m.metrics.Predictions.WithLabelValues("fall").Inc()
		m.logger.Info("Fall detected on single-shot query (%d boxes, %s)", len(detections), elapsed)
		if err := m.detectorService.DrawRectangle(&frame, detections); err != nil {
			m.logger.Error("Error annotating frame: %v", err)
		}
		if jpeg, err := m.detectorService.EncodeJPEG(frame); err == nil {
			m.recordEvent(jpeg, detections)
		} else {
			m.logger.Error("Error encoding snapshot: %v", err)
		}
	} else {
		m.metrics.Predictions.WithLabelValues("clear").Inc()
	}

	return prediction, nil
}

// captureOne opens the camera, reads one frame into dst and releases the camera.
func (m *Manager) captureOne(dst *gocv.Mat) error {
	capture, err := m.camera.Open()
	if err != nil {
		return err
	}
	defer capture.Close()

	return capture.Read(dst)
}

// Stream holds the camera for its whole lifetime and hands one annotated JPEG
// per captured frame to emit. A failed read ends the stream without error;
// cancellation of ctx or a failing emit also end it.
func (m *Manager) Stream(ctx context.Context, emit func(jpeg []byte) error) error {
	capture, err := m.camera.Open()
	if err != nil {
		m.metrics.CameraErrors.Inc()
		return err
	}
	defer capture.Close()

	m.metrics.ActiveStreams.Inc()
	defer m.metrics.ActiveStreams.Dec()

	frame := gocv.NewMat()
	defer frame.Close()

	var ticker *time.Ticker
	if m.frameInterval > 0 {
		ticker = time.NewTicker(m.frameInterval)
		defer ticker.Stop()
	}

	for frames := 0; ; frames++ {
		if ctx.Err() != nil {
			return nil
		}

		if err := capture.Read(&frame); err != nil {
			m.metrics.CameraErrors.Inc()
			m.logger.Warning("Stream ended after %d frames: %v", frames, err)
			return nil
		}
		m.metrics.FramesCaptured.Inc()

		detections, elapsed, err := m.detectorService.DetectObjects(frame)
		if err != nil {
			return fmt.Errorf("detection failed: %w", err)
		}
		m.metrics.ObserveInference(elapsed, len(detections))

		if err := m.detectorService.DrawRectangle(&frame, detections); err != nil {
			return err
		}
		jpeg, err := m.detectorService.EncodeJPEG(frame)
		if err != nil {
			return err
		}

		if len(detections) > 0 {
			m.recordEvent(jpeg, detections)
		}

		if err := emit(jpeg); err != nil {
			return fmt.Errorf("emit frame: %w", err)
		}
		m.metrics.StreamedFrames.Inc()

		if ticker != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}

// recordEvent buffers the snapshot and notifies viewers, at most once per cooldown.
func (m *Manager) recordEvent(jpeg []byte, detections []dto.DetectionResult) {
	now := time.Now()

	m.eventMu.Lock()
	if !m.lastEvent.IsZero() && now.Sub(m.lastEvent) < m.cooldown {
		m.eventMu.Unlock()
		return
	}
	m.lastEvent = now
	m.eventMu.Unlock()

	snapshot := dto.BufferedSnapshot{
		ID:         uuid.New().String(),
		Timestamp:  now,
		Source:     m.camera.Device(),
		Detections: detections,
		Data:       jpeg,
	}
	if !m.bufferService.AddSnapshot(snapshot) {
		return
	}
	m.metrics.EventsRecorded.Inc()

	labels := make([]string, 0, len(detections))
	seen := make(map[string]bool)
	for _, det := range detections {
		if !seen[det.Label] {
			seen[det.Label] = true
			labels = append(labels, det.Label)
		}
	}

	m.websocketService.BroadcastEvent(dto.EventInfo{
		ID:            snapshot.ID,
		Source:        snapshot.Source,
		Timestamp:     snapshot.Timestamp,
		Filename:      storage.Filename(snapshot),
		MaxConfidence: storage.MaxConfidence(detections),
		Labels:        labels,
		Detections:    detections,
	})
}
