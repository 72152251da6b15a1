package dto

// EventMessage is pushed to websocket viewers when an event is recorded.
type EventMessage struct {
	Type  string    `json:"type"`
	Event EventInfo `json:"event"`
}
