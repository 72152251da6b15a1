package ai

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"falldetector/internal/config"
	"falldetector/internal/dto"
	"falldetector/internal/inference"
	"falldetector/internal/logger"

	"gocv.io/x/gocv"
)

var (
	boxColor  = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	textColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// DetectorService owns the detection network. The network is not safe for
// concurrent use, so every inference and reload happens under mu.
type DetectorService struct {
	mu     sync.Mutex
	net    gocv.Net
	loaded bool

	modelPath    string
	configPath   string
	format       string
	inputSize    int
	threshold    float64
	nmsThreshold float64
	labels       inference.Labels
	jpegQuality  int

	logger *logger.Logger
}

// NewDetectorService creates a detector from the model settings in config.
// It attempts to initialize the underlying DNN network; a missing model is
// logged and leaves the service unloaded until Reload succeeds.
func NewDetectorService(config *config.Config, logger *logger.Logger) *DetectorService {
	service := &DetectorService{
		modelPath:    config.ModelPath,
		configPath:   config.ModelConfigPath,
		format:       config.ModelFormat,
		inputSize:    config.ModelInputSize,
		threshold:    config.ConfidenceThreshold,
		nmsThreshold: config.NMSThreshold,
		labels:       inference.Labels(config.ClassNames),
		jpegQuality:  config.JPEGQuality,
		logger:       logger,
	}

	if err := service.Reload(); err != nil {
		service.logger.Warning("Could not initialize detection network: %v", err)
	}

	return service
}

// ModelPath is the weights file the service loads from.
func (s *DetectorService) ModelPath() string {
	return s.modelPath
}

// Loaded reports whether a network is ready for inference.
func (s *DetectorService) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Reload reads the network from disk and swaps it in. The previous network
// keeps serving if loading fails.
func (s *DetectorService) Reload() error {
	net, err := s.readNet()
	if err != nil {
		return err
	}

	s.mu.Lock()
	old, hadOld := s.net, s.loaded
	s.net = net
	s.loaded = true
	s.mu.Unlock()

	if hadOld {
		old.Close()
	}
	s.logger.Info("Detection network loaded from %s (%s)", s.modelPath, s.format)
	return nil
}

// readNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) readNet() (gocv.Net, error) {
	if _, err := os.Stat(s.modelPath); err != nil {
		return gocv.Net{}, fmt.Errorf("model file not found: %s", s.modelPath)
	}

	var net gocv.Net
	switch s.format {
	case config.FormatSSD:
		if _, err := os.Stat(s.configPath); err != nil {
			return gocv.Net{}, fmt.Errorf("config file not found: %s", s.configPath)
		}
		net = gocv.ReadNet(s.modelPath, s.configPath)
	default:
		net = gocv.ReadNetFromONNX(s.modelPath)
	}

	if net.Empty() {
		net.Close()
		return gocv.Net{}, fmt.Errorf("failed to load network from %s", s.modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return gocv.Net{}, fmt.Errorf("failed to set preferable backend or target")
	}

	return net, nil
}

// DetectObjects runs the network on frame and returns the boxes above the
// confidence threshold after non-maximum suppression, plus the inference time.
func (s *DetectorService) DetectObjects(frame gocv.Mat) ([]dto.DetectionResult, time.Duration, error) {
	if frame.Empty() {
		return nil, 0, fmt.Errorf("frame is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, 0, dto.ErrModelNotLoaded
	}

	start := time.Now()
	blob := s.blob(frame)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()
	elapsed := time.Since(start)

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, elapsed, fmt.Errorf("failed to read network output: %w", err)
	}

	opts := inference.Options{
		Frame:     image.Pt(frame.Cols(), frame.Rows()),
		Input:     image.Pt(s.inputSize, s.inputSize),
		Threshold: s.threshold,
		Labels:    s.labels,
	}

	var results []dto.DetectionResult
	switch s.format {
	case config.FormatSSD:
		results, err = inference.DecodeSSD(data, opts)
	default:
		sizes := output.Size()
		if len(sizes) != 3 {
			return nil, elapsed, fmt.Errorf("unexpected yolo output shape %v", sizes)
		}
		rows, cols := sizes[1], sizes[2]
		// Some exports emit [1, N, 4+C]; candidates always outnumber attributes.
		if rows > cols {
			data = inference.Transpose(data, rows, cols)
			rows, cols = cols, rows
		}
		results, err = inference.DecodeYOLO(data, rows, cols, opts)
	}
	if err != nil {
		return nil, elapsed, err
	}

	return inference.NMS(results, s.nmsThreshold), elapsed, nil
}

func (s *DetectorService) blob(frame gocv.Mat) gocv.Mat {
	size := image.Pt(s.inputSize, s.inputSize)
	if s.format == config.FormatSSD {
		return gocv.BlobFromImage(frame, 1.0/127.5, size, gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	}

	// YOLO exports expect letterboxed input: aspect kept, gray borders.
	lb := inference.NewLetterbox(image.Pt(frame.Cols(), frame.Rows()), size)
	padded := gocv.NewMatWithSize(size.Y, size.X, frame.Type())
	defer padded.Close()
	padded.SetTo(gocv.NewScalar(114, 114, 114, 0))

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(frame, &resized, lb.Size, 0, 0, gocv.InterpolationLinear)

	content := padded.Region(image.Rect(lb.Pad.X, lb.Pad.Y, lb.Pad.X+lb.Size.X, lb.Pad.Y+lb.Size.Y))
	defer content.Close()
	resized.CopyTo(&content)

	return gocv.BlobFromImage(padded, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
}

// DrawRectangle draws detection results onto frame in place.
func (s *DetectorService) DrawRectangle(frame *gocv.Mat, detections []dto.DetectionResult) error {
	for _, detection := range detections {
		rect := image.Rect(detection.X, detection.Y, detection.X+detection.Width, detection.Y+detection.Height)
		if err := gocv.Rectangle(frame, rect, boxColor, 2); err != nil {
			return fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s %.2f", detection.Label, detection.Confidence)
		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.5, 1)
		top := detection.Y - size.Y - 6
		if top < 0 {
			top = detection.Y
		}
		background := image.Rect(detection.X, top, detection.X+size.X+4, top+size.Y+6)
		if err := gocv.Rectangle(frame, background, boxColor, -1); err != nil {
			return fmt.Errorf("failed to draw label background: %w", err)
		}
		if err := gocv.PutText(frame, label, image.Pt(detection.X+2, top+size.Y+2), gocv.FontHersheySimplex, 0.5, textColor, 1); err != nil {
			return fmt.Errorf("failed to draw text: %w", err)
		}
	}
	return nil
}

// EncodeJPEG encodes frame with the configured quality and returns a Go-owned copy.
func (s *DetectorService) EncodeJPEG(frame gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{int(gocv.IMWriteJpegQuality), s.jpegQuality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, buf.Len())
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

// Close releases the network.
func (s *DetectorService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		s.net.Close()
		s.loaded = false
	}
}
