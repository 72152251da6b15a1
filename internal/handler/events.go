package handler

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"falldetector/internal/dto"
	"falldetector/internal/logger"
	"falldetector/internal/repository"
	"falldetector/internal/service/storage"
)

const (
	defaultPageSize = 24
	maxPageSize     = 200
	maxPage         = 1_000_000
)

// ListEventsHandler returns a filtered, paginated page of recorded events.
func ListEventsHandler(eventRepo repository.EventRepository, detectionRepo repository.DetectionRepository,
	snapshotDir string, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		if page > maxPage {
			page = maxPage
		}
		limit := atoiDefault(q.Get("limit"), defaultPageSize)
		if limit > maxPageSize {
			limit = maxPageSize
		}

		filter := &dto.EventFilters{
			Label:  q.Get("label"),
			Source: q.Get("source"),
			Since:  parseDate(q.Get("since"), false),
			Until:  parseDate(q.Get("until"), true),
			Limit:  limit,
			Offset: (page - 1) * limit,
		}

		events, err := eventRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying events from database: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error", logger)
			return
		}

		totalCount, err := eventRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting events: %v", err)
			totalCount = len(events)
		}

		totalSize, err := eventRepo.GetTotalSize()
		if err != nil {
			logger.Error("Error getting snapshot size: %v", err)
			totalSize = 0
		}

		infos := make([]dto.EventInfo, 0, len(events))
		for _, ev := range events {
			labels := []string{}
			if detectionRepo != nil {
				if labels, err = detectionRepo.GetLabelsByEventID(ev.ID); err != nil {
					logger.Error("Error getting labels for event %s: %v", ev.ID, err)
					labels = []string{}
				}
			}

			infos = append(infos, dto.EventInfo{
				ID:            ev.ID,
				Source:        ev.Source,
				Timestamp:     ev.Timestamp,
				Filename:      ev.Filename,
				MaxConfidence: ev.MaxConfidence,
				Labels:        labels,
			})
		}

		writeJSON(w, http.StatusOK, dto.EventsPage{
			Events:      infos,
			SnapshotDir: snapshotDir,
			Size:        totalSize,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}, logger)
	}
}

// EventSnapshotHandler serves the annotated JPEG stored for ?id=.
func EventSnapshotHandler(eventRepo repository.EventRepository, snapshotDir string, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "Event id is required", logger)
			return
		}

		ev, err := eventRepo.GetByID(id)
		if err != nil {
			logger.Error("Error loading event %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error", logger)
			return
		}
		if ev == nil {
			writeError(w, http.StatusNotFound, "Event not found", logger)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, filepath.Join(snapshotDir, filepath.Base(ev.Filename)))
	}
}

// DeleteEventHandler removes one event, its detections and its snapshot.
func DeleteEventHandler(buffer *storage.BufferService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "Event id is required", logger)
			return
		}

		if err := buffer.Delete(id); err != nil {
			logger.Error("Failed to delete event %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error", logger)
			return
		}

		logger.Info("Deleted event: %s", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id}, logger)
	}
}

// ClearEventsHandler deletes every event and snapshot.
func ClearEventsHandler(buffer *storage.BufferService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := buffer.Clear(); err != nil {
			logger.Error("Error clearing events: %v", err)
			writeError(w, http.StatusInternalServerError, "Unable to clear events", logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate accepts RFC 3339 or "2006-01-02". A bare date used as an upper
// bound covers the whole day.
func parseDate(v string, endOfDay bool) time.Time {
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}
	}
	if endOfDay {
		return t.Add(24*time.Hour - time.Millisecond)
	}
	return t
}
