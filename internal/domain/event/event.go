package event

import (
	"time"
)

// Type identifies the kind of client action an event describes.
type Type string

const (
	TypeMouseMove Type = "mousemove"
	TypeClick     Type = "click"
	TypeKeyPress  Type = "keypress"
	TypeScroll    Type = "scroll"
)

// BehavioralEvent is one observed client action. The gateway assigns
// UserID from the validated credential; the client payload is never
// trusted for identity. ReceivedAt is set at write time by the database
// and is never client-supplied.
type BehavioralEvent struct {
	ID         int64     `json:"id,omitempty"`
	UserID     string    `json:"user_id"`
	EventType  string    `json:"event_type"`
	X          *int      `json:"x,omitempty"`
	Y          *int      `json:"y,omitempty"`
	Key        *string   `json:"key,omitempty"`
	Timestamp  int64     `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// HasCoordinates reports whether both pointer coordinates are present.
func (e *BehavioralEvent) HasCoordinates() bool {
	return e.X != nil && e.Y != nil
}

// Coordinates returns the pointer position, substituting zero for
// missing axes. Callers that need to distinguish absent coordinates
// should check HasCoordinates first.
func (e *BehavioralEvent) Coordinates() (x, y float64) {
	if e.X != nil {
		x = float64(*e.X)
	}
	if e.Y != nil {
		y = float64(*e.Y)
	}
	return x, y
}
