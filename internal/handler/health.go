package handler

import (
	"net/http"

	"falldetector/internal/logger"
)

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// HealthHandler reports liveness and whether a detection model is loaded.
func HealthHandler(pipeline Pipeline, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", ModelLoaded: pipeline.ModelLoaded()}, logger)
	}
}
