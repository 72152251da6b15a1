package model

import "time"

// Event represents a recorded detection with its snapshot on disk.
type Event struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	Filename      string    `json:"filename"`
	FilePath      string    `json:"filepath"`
	FileSize      int64     `json:"filesize"`
	MaxConfidence float64   `json:"max_confidence"`
}

// Detection represents a detected object belonging to an event.
type Detection struct {
	ID         int64   `json:"id"`
	EventID    string  `json:"event_id"`
	Label      string  `json:"label"`
	ClassID    int     `json:"class_id"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}
