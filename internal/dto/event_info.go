package dto

import (
	"encoding/json"
	"time"
)

// EventInfo is the API view of a recorded detection event.
type EventInfo struct {
	ID            string            `json:"id"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	Filename      string            `json:"filename"`
	MaxConfidence float64           `json:"maxConfidence"`
	Labels        []string          `json:"labels"`
	Detections    []DetectionResult `json:"detections,omitempty"`
}

// MarshalJSON renders the timestamp in RFC 3339 with milliseconds and adds the date and time of day.
func (e EventInfo) MarshalJSON() ([]byte, error) {
	type Alias EventInfo
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Timestamp: e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Date:      e.Timestamp.Format("02-01-2006"),
		TimeOfDay: e.Timestamp.Format("15:04"),
		Alias:     (Alias)(e),
	})
}
