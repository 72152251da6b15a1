package camera

import (
	"fmt"
	"strconv"

	"falldetector/internal/config"
	"falldetector/internal/dto"
	"falldetector/internal/logger"

	"gocv.io/x/gocv"
)

// Opener opens the configured capture device on demand.
// Each caller gets its own handle; nothing is pooled or shared.
type Opener struct {
	device string
	width  int
	height int
	logger *logger.Logger
}

// Capture is an open handle on a frame source.
type Capture interface {
	Read(dst *gocv.Mat) error
	Close() error
}

// deviceCapture reads frames from an OpenCV VideoCapture.
type deviceCapture struct {
	vc     *gocv.VideoCapture
	device string
}

// NewOpener creates an Opener for cfg.CameraDevice.
func NewOpener(cfg *config.Config, logger *logger.Logger) *Opener {
	return &Opener{
		device: cfg.CameraDevice,
		width:  cfg.CameraWidth,
		height: cfg.CameraHeight,
		logger: logger,
	}
}

// Device returns the configured device string, used to tag recorded events.
func (o *Opener) Device() string {
	return o.device
}

// Open acquires the device. Numeric devices are treated as indexes,
// anything else as a path or stream URL.
func (o *Opener) Open() (Capture, error) {
	vc, err := gocv.OpenVideoCapture(ParseDevice(o.device))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", dto.ErrCameraUnavailable, o.device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s is not opened", dto.ErrCameraUnavailable, o.device)
	}

	if o.width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(o.width))
	}
	if o.height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(o.height))
	}

	return &deviceCapture{vc: vc, device: o.device}, nil
}

// Read grabs the next frame into dst.
func (c *deviceCapture) Read(dst *gocv.Mat) error {
	if ok := c.vc.Read(dst); !ok || dst.Empty() {
		return fmt.Errorf("%w: %s", dto.ErrFrameRead, c.device)
	}
	return nil
}

// Close releases the device.
func (c *deviceCapture) Close() error {
	return c.vc.Close()
}

// ParseDevice converts "0" into the integer index 0 and leaves paths untouched.
func ParseDevice(device string) interface{} {
	if index, err := strconv.Atoi(device); err == nil {
		return index
	}
	return device
}
