package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"falldetector/internal/config"
	"falldetector/internal/dto"
	"falldetector/internal/logger"
	"falldetector/internal/metrics"
	"falldetector/internal/service/camera"
	"falldetector/internal/service/storage"
	"falldetector/internal/service/websocket"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gocv.io/x/gocv"
)

var testJPEG = []byte{0xFF, 0xD8, 0xFF, 0xD9}

// fakeCapture yields frames successful reads, then fails like an unplugged device.
type fakeCapture struct {
	frames int
	reads  int
	closed bool
}

func (c *fakeCapture) Read(dst *gocv.Mat) error {
	if c.reads >= c.frames {
		return fmt.Errorf("%w: fake0", dto.ErrFrameRead)
	}
	c.reads++
	return nil
}

func (c *fakeCapture) Close() error {
	c.closed = true
	return nil
}

type fakeCamera struct {
	capture *fakeCapture
	openErr error
	opens   int
}

func (c *fakeCamera) Open() (camera.Capture, error) {
	c.opens++
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.capture, nil
}

func (c *fakeCamera) Device() string { return "fake0" }

// fakeDetector returns the same detections for every frame and remembers
// whether the camera was still open when inference ran.
type fakeDetector struct {
	detections     []dto.DetectionResult
	err            error
	calls          int
	capture        *fakeCapture
	cameraReleased []bool
}

func (d *fakeDetector) Loaded() bool { return true }

func (d *fakeDetector) DetectObjects(frame gocv.Mat) ([]dto.DetectionResult, time.Duration, error) {
	d.calls++
	if d.capture != nil {
		d.cameraReleased = append(d.cameraReleased, d.capture.closed)
	}
	return d.detections, time.Millisecond, d.err
}

func (d *fakeDetector) DrawRectangle(frame *gocv.Mat, detections []dto.DetectionResult) error {
	return nil
}

func (d *fakeDetector) EncodeJPEG(frame gocv.Mat) ([]byte, error) {
	return testJPEG, nil
}

var fall = []dto.DetectionResult{{Label: "fall", Confidence: 0.9, Width: 10, Height: 10}}

type managerFixture struct {
	manager  *Manager
	camera   *fakeCamera
	detector *fakeDetector
	buffer   *storage.BufferService
	metrics  *metrics.Metrics
}

func newTestManager(t *testing.T, cooldown, frames int, detections []dto.DetectionResult) *managerFixture {
	t.Helper()
	cfg := config.Default()
	cfg.SnapshotDirectory = t.TempDir()
	cfg.EventCooldown = cooldown
	cfg.StreamMaxFPS = 0
	log := logger.NewDiscard()

	capture := &fakeCapture{frames: frames}
	f := &managerFixture{
		camera:   &fakeCamera{capture: capture},
		detector: &fakeDetector{detections: detections, capture: capture},
		buffer:   storage.NewBufferService(cfg, log, nil, nil),
		metrics:  metrics.New(),
	}
	f.manager = NewManager(cfg, f.camera, f.detector, f.buffer, websocket.NewHubService(log), f.metrics, log)
	return f
}

// ========================================
// Construction
// ========================================

func TestNewManager_FrameInterval(t *testing.T) {
	cfg := config.Default()
	cfg.StreamMaxFPS = 4
	log := logger.NewDiscard()

	mng := NewManager(cfg, &fakeCamera{}, &fakeDetector{}, nil, nil, metrics.New(), log)
	if mng.frameInterval != 250*time.Millisecond {
		t.Errorf("frameInterval = %v, expected 250ms", mng.frameInterval)
	}
	if mng.cooldown != 10*time.Second {
		t.Errorf("cooldown = %v, expected 10s", mng.cooldown)
	}
	if !mng.ModelLoaded() {
		t.Error("ModelLoaded should follow the detector")
	}
}

// ========================================
// Predict
// ========================================

func TestManager_Predict(t *testing.T) {
	tests := []struct {
		name        string
		openErr     error
		frames      int
		detections  []dto.DetectionResult
		detectErr   error
		cameraError bool
		wantErr     bool
		wantFall    bool
		wantEvents  int
		wantCalls   int
	}{
		{name: "camera unavailable", openErr: fmt.Errorf("%w: open 0", dto.ErrCameraUnavailable), cameraError: true, wantErr: true},
		{name: "frame read failure", frames: 0, cameraError: true, wantErr: true},
		{name: "no fall", frames: 1, wantCalls: 1},
		{name: "fall", frames: 1, detections: fall, wantFall: true, wantEvents: 1, wantCalls: 1},
		{name: "detector failure", frames: 1, detectErr: errors.New("forward failed"), wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestManager(t, 0, tt.frames, tt.detections)
			f.camera.openErr = tt.openErr
			f.detector.err = tt.detectErr

			prediction, err := f.manager.Predict(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Predict error = %v, wantErr %v", err, tt.wantErr)
			}
			if dto.IsCameraError(err) != tt.cameraError {
				t.Errorf("IsCameraError(%v) = %v, expected %v", err, !tt.cameraError, tt.cameraError)
			}
			if prediction.FallDetected != tt.wantFall {
				t.Errorf("FallDetected = %v, expected %v", prediction.FallDetected, tt.wantFall)
			}
			if f.buffer.Pending() != tt.wantEvents {
				t.Errorf("Recorded %d events, expected %d", f.buffer.Pending(), tt.wantEvents)
			}
			if f.detector.calls != tt.wantCalls {
				t.Errorf("Detector ran %d times, expected %d", f.detector.calls, tt.wantCalls)
			}
			if tt.openErr == nil && !f.camera.capture.closed {
				t.Error("Camera was not released")
			}
		})
	}
}

func TestManager_PredictReleasesCameraBeforeInference(t *testing.T) {
	f := newTestManager(t, 0, 1, nil)

	if _, err := f.manager.Predict(context.Background()); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(f.detector.cameraReleased) != 1 || !f.detector.cameraReleased[0] {
		t.Errorf("Camera should be closed before inference, got %v", f.detector.cameraReleased)
	}
	if got := testutil.ToFloat64(f.metrics.Predictions.WithLabelValues("clear")); got != 1 {
		t.Errorf("clear predictions = %v, expected 1", got)
	}
}

// ========================================
// Stream
// ========================================

func TestManager_StreamEndsOnReadFailure(t *testing.T) {
	f := newTestManager(t, 0, 3, nil)

	emitted := 0
	err := f.manager.Stream(context.Background(), func(jpeg []byte) error {
		emitted++
		return nil
	})
	if err != nil {
		t.Fatalf("Stream should end without error, got %v", err)
	}
	if emitted != 3 {
		t.Errorf("Emitted %d frames, expected 3", emitted)
	}
	if f.camera.opens != 1 || !f.camera.capture.closed {
		t.Errorf("Expected one open and a release, got opens=%d closed=%v", f.camera.opens, f.camera.capture.closed)
	}
	if got := testutil.ToFloat64(f.metrics.ActiveStreams); got != 0 {
		t.Errorf("ActiveStreams = %v after stream end", got)
	}
	if f.buffer.Pending() != 0 {
		t.Errorf("Negative frames recorded %d events", f.buffer.Pending())
	}
}

func TestManager_StreamStopsOnEmitError(t *testing.T) {
	f := newTestManager(t, 0, 100, nil)
	gone := errors.New("client gone")

	emitted := 0
	err := f.manager.Stream(context.Background(), func(jpeg []byte) error {
		emitted++
		if emitted == 2 {
			return gone
		}
		return nil
	})
	if !errors.Is(err, gone) {
		t.Fatalf("Stream error = %v, expected client gone", err)
	}
	if emitted != 2 || f.detector.calls != 2 {
		t.Errorf("emitted=%d detections=%d, expected 2/2", emitted, f.detector.calls)
	}
	if !f.camera.capture.closed {
		t.Error("Camera was not released")
	}
}

func TestManager_StreamStopsOnCancel(t *testing.T) {
	f := newTestManager(t, 0, 100, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emitted := 0
	err := f.manager.Stream(ctx, func(jpeg []byte) error {
		emitted++
		if emitted == 2 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Cancelled stream should end without error, got %v", err)
	}
	if emitted != 2 {
		t.Errorf("Emitted %d frames, expected 2", emitted)
	}
	if !f.camera.capture.closed {
		t.Error("Camera was not released")
	}
}

func TestManager_StreamOpenFailure(t *testing.T) {
	f := newTestManager(t, 0, 0, nil)
	f.camera.openErr = fmt.Errorf("%w: open 0", dto.ErrCameraUnavailable)

	err := f.manager.Stream(context.Background(), func(jpeg []byte) error {
		t.Error("emit should not be called")
		return nil
	})
	if !dto.IsCameraError(err) {
		t.Errorf("Expected camera error, got %v", err)
	}
	if got := testutil.ToFloat64(f.metrics.CameraErrors); got != 1 {
		t.Errorf("CameraErrors = %v, expected 1", got)
	}
}

func TestManager_StreamRecordsEventsWithCooldown(t *testing.T) {
	f := newTestManager(t, 60, 5, fall)

	if err := f.manager.Stream(context.Background(), func([]byte) error { return nil }); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if f.buffer.Pending() != 1 {
		t.Errorf("Expected 1 event within the cooldown, got %d", f.buffer.Pending())
	}
	if got := testutil.ToFloat64(f.metrics.StreamedFrames); got != 5 {
		t.Errorf("StreamedFrames = %v, expected 5", got)
	}
}

// ========================================
// Event recording
// ========================================

func TestManager_RecordEventCooldown(t *testing.T) {
	f := newTestManager(t, 60, 0, nil)

	f.manager.recordEvent(testJPEG, fall)
	f.manager.recordEvent(testJPEG, fall)

	if f.buffer.Pending() != 1 {
		t.Errorf("Expected 1 buffered event within cooldown, got %d", f.buffer.Pending())
	}
	if got := testutil.ToFloat64(f.metrics.EventsRecorded); got != 1 {
		t.Errorf("EventsRecorded = %v, expected 1", got)
	}

	f.manager.lastEvent = time.Now().Add(-2 * time.Minute)
	f.manager.recordEvent(testJPEG, fall)
	if f.buffer.Pending() != 2 {
		t.Errorf("Expected a second event after the cooldown, got %d", f.buffer.Pending())
	}
}

func TestManager_RecordEventWithoutCooldown(t *testing.T) {
	f := newTestManager(t, 0, 0, nil)

	for i := 0; i < 3; i++ {
		f.manager.recordEvent(testJPEG, fall)
	}
	if f.buffer.Pending() != 3 {
		t.Errorf("Expected every event recorded, got %d", f.buffer.Pending())
	}
}
