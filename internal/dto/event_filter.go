package dto

import "time"

// EventFilters describe user-provided filters to narrow the event list.
type EventFilters struct {
	Label  string
	Source string
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}
