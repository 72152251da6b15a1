// Package inference turns raw detection network output into frame-space boxes.
// It has no cgo dependency so it can be tested without OpenCV.
package inference

import (
	"fmt"
	"image"
	"math"

	"falldetector/internal/dto"
)

// Options control how raw network output is filtered and scaled.
type Options struct {
	// Frame is the size of the captured image the boxes are mapped onto.
	Frame image.Point
	// Input is the letterboxed network input size the YOLO coordinates are expressed in.
	Input image.Point
	// Threshold is the confidence a candidate must exceed.
	Threshold float64
	Labels    Labels
}

// Letterbox describes how a frame was fitted into the square network input:
// scaled by Scale keeping the aspect ratio, then placed at Pad inside gray borders.
type Letterbox struct {
	Scale float64
	Pad   image.Point
	Size  image.Point
}

// NewLetterbox fits frame into input and centres the content.
func NewLetterbox(frame, input image.Point) Letterbox {
	if frame.X <= 0 || frame.Y <= 0 {
		return Letterbox{Scale: 1}
	}
	scale := math.Min(float64(input.X)/float64(frame.X), float64(input.Y)/float64(frame.Y))
	size := image.Pt(int(math.Round(float64(frame.X)*scale)), int(math.Round(float64(frame.Y)*scale)))
	dw := float64(input.X-size.X) / 2
	dh := float64(input.Y-size.Y) / 2
	return Letterbox{
		Scale: scale,
		Pad:   image.Pt(int(math.Round(dw-0.1)), int(math.Round(dh-0.1))),
		Size:  size,
	}
}

// DecodeYOLO decodes a YOLOv8 style output of shape [1, 4+C, N], flattened
// row-major into data with rows = 4+C and cols = N. Each column is one candidate:
// cx, cy, w, h in letterboxed input pixels followed by C class scores.
func DecodeYOLO(data []float32, rows, cols int, opts Options) ([]dto.DetectionResult, error) {
	if rows < 5 {
		return nil, fmt.Errorf("yolo output needs at least 5 rows, got %d", rows)
	}
	if len(data) < rows*cols {
		return nil, fmt.Errorf("yolo output has %d values, expected %d", len(data), rows*cols)
	}
	if opts.Input.X <= 0 || opts.Input.Y <= 0 {
		return nil, fmt.Errorf("invalid input size %v", opts.Input)
	}

	lb := NewLetterbox(opts.Frame, opts.Input)
	padX, padY := float64(lb.Pad.X), float64(lb.Pad.Y)
	at := func(r, c int) float64 { return float64(data[r*cols+c]) }

	var results []dto.DetectionResult
	for c := 0; c < cols; c++ {
		classID, score := -1, 0.0
		for r := 4; r < rows; r++ {
			if s := at(r, c); s > score {
				classID, score = r-4, s
			}
		}
		if classID < 0 || score <= opts.Threshold {
			continue
		}

		cx, cy, w, h := at(0, c), at(1, c), at(2, c), at(3, c)
		rect := image.Rect(
			int((cx-w/2-padX)/lb.Scale),
			int((cy-h/2-padY)/lb.Scale),
			int((cx+w/2-padX)/lb.Scale),
			int((cy+h/2-padY)/lb.Scale),
		)
		if det, ok := toResult(rect, classID, score, opts); ok {
			results = append(results, det)
		}
	}
	return results, nil
}

// DecodeSSD decodes SSD output rows of [batch, class, score, x1, y1, x2, y2]
// with coordinates normalized to the frame.
func DecodeSSD(data []float32, opts Options) ([]dto.DetectionResult, error) {
	if len(data)%7 != 0 {
		return nil, fmt.Errorf("ssd output length %d is not a multiple of 7", len(data))
	}

	fw, fh := float64(opts.Frame.X), float64(opts.Frame.Y)

	var results []dto.DetectionResult
	for i := 0; i+7 <= len(data); i += 7 {
		score := float64(data[i+2])
		if score <= opts.Threshold {
			continue
		}
		classID := int(data[i+1])
		rect := image.Rect(
			int(float64(data[i+3])*fw),
			int(float64(data[i+4])*fh),
			int(float64(data[i+5])*fw),
			int(float64(data[i+6])*fh),
		)
		if det, ok := toResult(rect, classID, score, opts); ok {
			results = append(results, det)
		}
	}
	return results, nil
}

// toResult clamps rect to the frame and drops empty boxes.
func toResult(rect image.Rectangle, classID int, score float64, opts Options) (dto.DetectionResult, bool) {
	rect = rect.Canon().Intersect(image.Rect(0, 0, opts.Frame.X, opts.Frame.Y))
	if rect.Empty() {
		return dto.DetectionResult{}, false
	}
	return dto.DetectionResult{
		Label:      opts.Labels.Name(classID),
		ClassID:    classID,
		Confidence: score,
		X:          rect.Min.X,
		Y:          rect.Min.Y,
		Width:      rect.Dx(),
		Height:     rect.Dy(),
	}, true
}

// Transpose returns the row-major transpose of a rows x cols matrix.
func Transpose(data []float32, rows, cols int) []float32 {
	out := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = data[r*cols+c]
		}
	}
	return out
}
