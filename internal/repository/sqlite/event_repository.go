package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"falldetector/internal/dto"
	"falldetector/internal/model"
)

// EventRepository implements repository.EventRepository for SQLite.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `e.id, e.source, e.timestamp, e.filename, e.filepath, e.filesize, e.max_confidence`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var ev model.Event
	var millis int64
	if err := row.Scan(&ev.ID, &ev.Source, &millis, &ev.Filename, &ev.FilePath, &ev.FileSize, &ev.MaxConfidence); err != nil {
		return nil, err
	}
	ev.Timestamp = time.UnixMilli(millis)
	return &ev, nil
}

// Insert adds a new event record to the database.
func (r *EventRepository) Insert(ev *model.Event) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO events (id, source, timestamp, filename, filepath, filesize, max_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Source, ev.Timestamp.UnixMilli(), ev.Filename, ev.FilePath, ev.FileSize, ev.MaxConfidence)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetByID retrieves an event by its ID. Returns nil when absent.
func (r *EventRepository) GetByID(id string) (*model.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ev, err := scanEvent(r.db.Conn().QueryRow(`SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

// GetByFilename retrieves an event by its snapshot filename. Returns nil when absent.
func (r *EventRepository) GetByFilename(filename string) (*model.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ev, err := scanEvent(r.db.Conn().QueryRow(`SELECT `+eventColumns+` FROM events e WHERE e.filename = ?`, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

// whereClause builds the shared filter for listing and counting.
func whereClause(filter *dto.EventFilters) (string, []interface{}) {
	query := ` WHERE 1=1`
	args := []interface{}{}
	if filter == nil {
		return query, args
	}

	if filter.Source != "" {
		query += " AND e.source = ?"
		args = append(args, filter.Source)
	}

	if filter.Label != "" {
		query += " AND EXISTS (SELECT 1 FROM detections d WHERE d.event_id = e.id AND d.label = ?)"
		args = append(args, filter.Label)
	}

	if !filter.Since.IsZero() {
		query += " AND e.timestamp >= ?"
		args = append(args, filter.Since.UnixMilli())
	}

	if !filter.Until.IsZero() {
		query += " AND e.timestamp <= ?"
		args = append(args, filter.Until.UnixMilli())
	}

	return query, args
}

// GetAll retrieves events based on filter criteria, newest first.
func (r *EventRepository) GetAll(filter *dto.EventFilters) ([]model.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	query := `SELECT ` + eventColumns + ` FROM events e` + where + ` ORDER BY e.timestamp DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *ev)
	}

	return events, rows.Err()
}

// GetTotalCount returns the total count of events matching the filter.
func (r *EventRepository) GetTotalCount(filter *dto.EventFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM events e`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// GetTotalSize returns the summed size of all stored snapshots in bytes.
func (r *EventRepository) GetTotalSize() (int64, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var size int64
	if err := r.db.Conn().QueryRow(`SELECT COALESCE(SUM(filesize), 0) FROM events`).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to sum snapshot sizes: %w", err)
	}
	return size, nil
}

// Delete removes an event and its detections.
func (r *EventRepository) Delete(id string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// DeleteAll removes all events and their detections.
func (r *EventRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections`); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM events`); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}
