package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"falldetector/internal/dto"
	"falldetector/internal/logger"
)

const (
	frameBoundary = "frame"
	partHeader    = "--" + frameBoundary + "\r\nContent-Type: image/jpeg\r\n\r\n"
)

// VideoFeedHandler streams annotated frames as multipart/x-mixed-replace until the
// camera stops delivering frames or the client goes away.
func VideoFeedHandler(pipeline Pipeline, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "Streaming unsupported", logger)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+frameBoundary)
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		logger.Info("Video feed opened by %s", r.RemoteAddr)

		err := pipeline.Stream(r.Context(), func(jpeg []byte) error {
			return writeFrame(w, flusher, jpeg)
		})
		switch {
		case err == nil:
			logger.Info("Video feed closed for %s", r.RemoteAddr)
		case dto.IsCameraError(err):
			logger.Warning("Video feed ended: %v", err)
		case errors.Is(err, context.Canceled):
			logger.Info("Video feed client %s disconnected", r.RemoteAddr)
		default:
			logger.Error("Video feed failed: %v", err)
		}
	}
}

// writeFrame writes one multipart part and flushes it to the client.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, jpeg []byte) error {
	if _, err := fmt.Fprint(w, partHeader); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
