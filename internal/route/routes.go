package route

import (
	"net/http"

	"falldetector/internal/config"
	"falldetector/internal/handler"
	"falldetector/internal/logger"
	"falldetector/internal/metrics"
	"falldetector/internal/middleware"
	"falldetector/internal/repository"
	"falldetector/internal/service/storage"
	"falldetector/internal/service/websocket"
)

// Dependencies groups what the route table hands to the handlers.
type Dependencies struct {
	Pipeline      handler.Pipeline
	Buffer        *storage.BufferService
	Hub           *websocket.HubService
	EventRepo     repository.EventRepository
	DetectionRepo repository.DetectionRepository
	Metrics       *metrics.Metrics
}

// SetupRoutes registers the HTTP endpoints and wraps the mux with CORS and request logging.
func SetupRoutes(deps Dependencies, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()
	// HEAD is not accepted: it would run the capture pipeline with nowhere to send the body.
	get := func(h http.HandlerFunc) http.HandlerFunc { return middleware.AllowMethods(logger, h, http.MethodGet) }
	post := func(h http.HandlerFunc) http.HandlerFunc { return middleware.AllowMethods(logger, h, http.MethodPost) }

	// Detection endpoints
	mux.HandleFunc("/video_feed", get(handler.VideoFeedHandler(deps.Pipeline, logger)))
	mux.HandleFunc("/predict", get(handler.PredictHandler(deps.Pipeline, logger)))

	// Event history
	snapshotDir := deps.Buffer.Dir()
	mux.HandleFunc("/api/events", get(handler.ListEventsHandler(deps.EventRepo, deps.DetectionRepo, snapshotDir, logger)))
	mux.HandleFunc("/api/events/snapshot", get(handler.EventSnapshotHandler(deps.EventRepo, snapshotDir, logger)))
	mux.HandleFunc("/api/events/delete", post(handler.DeleteEventHandler(deps.Buffer, logger)))
	mux.HandleFunc("/api/events/clear", post(handler.ClearEventsHandler(deps.Buffer, logger)))
	mux.HandleFunc("/api/events/ws", get(handler.EventsWebsocketHandler(deps.Hub, cfg.AllowedOrigins, logger)))

	// Operations
	mux.HandleFunc("/healthz", get(handler.HealthHandler(deps.Pipeline, logger)))
	mux.Handle("/metrics", deps.Metrics.Handler())

	// Log endpoints
	for _, level := range []string{"info", "warning", "error"} {
		filename := level + ".log"
		mux.HandleFunc("/logs/"+level, get(handler.ShowLogsHandler(logger, filename)))
		mux.HandleFunc("/logs/"+level+"/clear", post(handler.ClearLogsHandler(logger, filename)))
	}

	return middleware.Logging(logger)(middleware.CORS(cfg.AllowedOrigins)(mux))
}
