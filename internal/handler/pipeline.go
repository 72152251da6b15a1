package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"falldetector/internal/dto"
	"falldetector/internal/logger"
)

// Pipeline is the capture and detection backend the HTTP handlers drive.
type Pipeline interface {
	Predict(ctx context.Context) (dto.Prediction, error)
	Stream(ctx context.Context, emit func(jpeg []byte) error) error
	ModelLoaded() bool
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, logger *logger.Logger) {
	writeJSON(w, status, dto.ErrorResponse{Error: message}, logger)
}
