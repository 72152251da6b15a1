package handler

import (
	"net/http"
	"strconv"

	"falldetector/internal/dto"
	"falldetector/internal/logger"
)

// PredictHandler answers GET /predict with {"fall_detected": bool} for one freshly captured frame.
// With ?verbose=1 the individual detections are included.
func PredictHandler(pipeline Pipeline, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prediction, err := pipeline.Predict(r.Context())
		if err != nil {
			if dto.IsCameraError(err) {
				logger.Error("Prediction failed: %v", err)
				writeError(w, http.StatusInternalServerError, "Camera error", logger)
				return
			}
			logger.Error("Prediction failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Detection error", logger)
			return
		}

		if verbose, _ := strconv.ParseBool(r.URL.Query().Get("verbose")); !verbose {
			prediction.Detections = nil
		}

		writeJSON(w, http.StatusOK, prediction, logger)
	}
}
