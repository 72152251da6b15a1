package repository

import (
	"falldetector/internal/dto"
	"falldetector/internal/model"
)

// EventRepository defines the interface for event data operations.
type EventRepository interface {
	// Create operations
	Insert(ev *model.Event) error

	// Read operations
	GetByID(id string) (*model.Event, error)
	GetByFilename(filename string) (*model.Event, error)
	GetAll(filter *dto.EventFilters) ([]model.Event, error)
	GetTotalCount(filter *dto.EventFilters) (int, error)
	GetTotalSize() (int64, error)

	// Delete operations
	Delete(id string) error
	DeleteAll() error
}

// DetectionRepository defines the interface for detection data operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(detections []model.Detection) error

	// Read operations
	GetByEventID(eventID string) ([]model.Detection, error)
	GetLabelsByEventID(eventID string) ([]string, error)
	GetAllLabels() ([]string, error)
}
