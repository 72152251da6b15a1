package dto

// EventsPage is a paginated response payload for the event history.
type EventsPage struct {
	Events      []EventInfo `json:"events"`
	SnapshotDir string      `json:"snapshotDir"`
	Size        int64       `json:"size"`
	Length      int         `json:"length"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	Limit       int         `json:"pageSize"`
}
