package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"falldetector/internal/config"
	"falldetector/internal/dto"
	"falldetector/internal/logger"
	"falldetector/internal/model"
	"falldetector/internal/repository"
)

// timestampLayout is the filename timestamp, always in UTC.
const timestampLayout = "20060102-150405.000"

// BufferService buffers annotated snapshots in memory and periodically flushes
// them to disk and to the event store.
type BufferService struct {
	snapshotDir   string
	limit         int
	interval      time.Duration
	snapshots     []dto.BufferedSnapshot
	mu            sync.Mutex
	logger        *logger.Logger
	eventRepo     repository.EventRepository
	detectionRepo repository.DetectionRepository
}

// NewBufferService creates a BufferService. Repositories may be nil, in which
// case snapshots are only written to disk.
func NewBufferService(config *config.Config, logger *logger.Logger, eventRepo repository.EventRepository, detectionRepo repository.DetectionRepository) *BufferService {
	return &BufferService{
		snapshotDir:   config.SnapshotDirectory,
		limit:         config.SnapshotBufferLimit,
		interval:      config.FlushInterval(),
		snapshots:     make([]dto.BufferedSnapshot, 0),
		logger:        logger,
		eventRepo:     eventRepo,
		detectionRepo: detectionRepo,
	}
}

// Dir returns the snapshot directory.
func (s *BufferService) Dir() string {
	return s.snapshotDir
}

// Run flushes on every tick until ctx is cancelled, then flushes once more.
func (s *BufferService) Run(ctx context.Context) {
	if s.interval <= 0 {
		<-ctx.Done()
		s.FlushSnapshots()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushSnapshots()
			return
		case <-ticker.C:
			s.FlushSnapshots()
		}
	}
}

// AddSnapshot appends a snapshot to the buffer. It returns false when the
// buffer is full and the snapshot was dropped.
func (s *BufferService) AddSnapshot(snapshot dto.BufferedSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit > 0 && len(s.snapshots) >= s.limit {
		s.logger.Warning("Snapshot buffer full (%d), dropping event %s", s.limit, snapshot.ID)
		return false
	}

	s.snapshots = append(s.snapshots, snapshot)
	s.logger.Info("Snapshot buffer size: %d/%d", len(s.snapshots), s.limit)
	return true
}

// Pending returns the number of buffered snapshots.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// FlushSnapshots writes buffered snapshots to disk and the event store and
// resets the buffer. It returns how many were saved.
func (s *BufferService) FlushSnapshots() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) == 0 {
		return 0
	}

	if err := os.MkdirAll(s.snapshotDir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0
	}

	savedCount := 0
	for _, snapshot := range s.snapshots {
		filename := Filename(snapshot)
		fullpath := filepath.Join(s.snapshotDir, filename)

		if err := os.WriteFile(fullpath, snapshot.Data, 0644); err != nil {
			s.logger.Error("Error saving snapshot %s: %v", filename, err)
			continue
		}

		if err := s.store(snapshot, filename, fullpath); err != nil {
			s.logger.Error("Error saving event %s to database: %v", snapshot.ID, err)
			continue
		}

		savedCount++
	}

	s.logger.Info("Flushed %d snapshots to %s", savedCount, s.snapshotDir)
	s.snapshots = s.snapshots[:0]
	return savedCount
}

func (s *BufferService) store(snapshot dto.BufferedSnapshot, filename, fullpath string) error {
	if s.eventRepo == nil {
		return nil
	}

	event := &model.Event{
		ID:            snapshot.ID,
		Source:        snapshot.Source,
		Timestamp:     snapshot.Timestamp,
		Filename:      filename,
		FilePath:      fullpath,
		FileSize:      int64(len(snapshot.Data)),
		MaxConfidence: MaxConfidence(snapshot.Detections),
	}
	if err := s.eventRepo.Insert(event); err != nil {
		return err
	}

	if s.detectionRepo == nil || len(snapshot.Detections) == 0 {
		return nil
	}

	detections := make([]model.Detection, 0, len(snapshot.Detections))
	for _, det := range snapshot.Detections {
		detections = append(detections, model.Detection{
			EventID:    snapshot.ID,
			Label:      det.Label,
			ClassID:    det.ClassID,
			X:          det.X,
			Y:          det.Y,
			Width:      det.Width,
			Height:     det.Height,
			Confidence: det.Confidence,
		})
	}
	return s.detectionRepo.InsertBatch(detections)
}

// Delete removes one event from the buffer, the disk and the store.
func (s *BufferService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.snapshots[:0]
	for _, snapshot := range s.snapshots {
		if snapshot.ID != id {
			kept = append(kept, snapshot)
		}
	}
	s.snapshots = kept

	if s.eventRepo == nil {
		return nil
	}

	event, err := s.eventRepo.GetByID(id)
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}

	if err := os.Remove(filepath.Join(s.snapshotDir, event.Filename)); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete file %s: %v", event.Filename, err)
	}
	return s.eventRepo.Delete(id)
}

// Clear drops the buffer, deletes every snapshot file and empties the store.
func (s *BufferService) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = s.snapshots[:0]

	files, err := os.ReadDir(s.snapshotDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unable to read snapshot directory: %w", err)
	}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".jpg" {
			continue
		}
		if err := os.Remove(filepath.Join(s.snapshotDir, file.Name())); err != nil {
			s.logger.Error("Error deleting file %s: %v", file.Name(), err)
		}
	}

	if s.eventRepo != nil {
		if err := s.eventRepo.DeleteAll(); err != nil {
			return err
		}
	}

	s.logger.Info("All snapshots cleared from directory: %s", s.snapshotDir)
	return nil
}

// Filename builds "<timestamp>_<source>_<labels>_<id8>.jpg".
func Filename(snapshot dto.BufferedSnapshot) string {
	id := sanitize(snapshot.ID)
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s_%s_%s.jpg",
		snapshot.Timestamp.UTC().Format(timestampLayout),
		sanitize(snapshot.Source),
		strings.Join(uniqueLabels(snapshot.Detections), "+"),
		id,
	)
}

// ParseFilename extracts the timestamp, source and labels encoded by Filename.
// Names without the trailing id segment are accepted too. The source comes
// back in its sanitized form.
func ParseFilename(name string) (time.Time, string, []string, error) {
	if filepath.Ext(name) != ".jpg" {
		return time.Time{}, "", nil, fmt.Errorf("not a jpeg snapshot: %s", name)
	}

	parts := strings.Split(strings.TrimSuffix(name, ".jpg"), "_")
	if len(parts) != 3 && len(parts) != 4 {
		return time.Time{}, "", nil, fmt.Errorf("unexpected snapshot name: %s", name)
	}

	timestamp, err := time.ParseInLocation(timestampLayout, parts[0], time.UTC)
	if err != nil {
		return time.Time{}, "", nil, fmt.Errorf("invalid timestamp in %s: %w", name, err)
	}

	var labels []string
	if parts[2] != "" {
		labels = strings.Split(parts[2], "+")
	}
	return timestamp, parts[1], labels, nil
}

// MaxConfidence returns the strongest detection score, 0 when empty.
func MaxConfidence(detections []dto.DetectionResult) float64 {
	max := 0.0
	for _, det := range detections {
		if det.Confidence > max {
			max = det.Confidence
		}
	}
	return max
}

func uniqueLabels(detections []dto.DetectionResult) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, det := range detections {
		label := sanitize(det.Label)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// sanitize keeps letters, digits, dots and dashes; everything else becomes a dash.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '-'
	}, s)
}
