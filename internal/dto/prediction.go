package dto

// Prediction is the outcome of a single-shot query.
type Prediction struct {
	FallDetected bool              `json:"fall_detected"`
	Detections   []DetectionResult `json:"detections,omitempty"`
}

// ErrorResponse is the JSON body returned on failures.
type ErrorResponse struct {
	Error string `json:"error"`
}
