package dto

import "time"

// BufferedSnapshot holds an annotated frame and its detections before flushing to disk.
type BufferedSnapshot struct {
	ID         string
	Timestamp  time.Time
	Source     string
	Detections []DetectionResult
	Data       []byte
}
