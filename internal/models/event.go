package models

import "time"

type EventKind string

const (
	EventSignalGenerated EventKind = "signal_generated"
	EventSignalRejected  EventKind = "signal_rejected"
	EventPositionOpened  EventKind = "position_opened"
	EventPositionReduced EventKind = "position_reduced"
	EventPositionClosed  EventKind = "position_closed"
)

// Event is an append-only record for the change-notified store.
type Event struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	InstID  string    `json:"instrument"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}
