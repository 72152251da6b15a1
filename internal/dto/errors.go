package dto

import "errors"

var (
	// ErrCameraUnavailable is returned when the capture device cannot be opened.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrFrameRead is returned when the device is open but yields no frame.
	ErrFrameRead = errors.New("camera frame read failed")
	// ErrModelNotLoaded is returned when inference is requested without a network.
	ErrModelNotLoaded = errors.New("detection model not loaded")
)

// IsCameraError reports whether err comes from the capture device.
func IsCameraError(err error) bool {
	return errors.Is(err, ErrCameraUnavailable) || errors.Is(err, ErrFrameRead)
}
