package history

import (
	"context"
	"time"
)

// EventType defines the kind of run event.
type EventType string

const (
	// EventStatus carries one status record of a processed guide.
	EventStatus EventType = "status"
	// EventState carries an engine state transition.
	EventState EventType = "state"
)

// Event is a run event exported to external systems. Status fields are empty
// for state events and FromState/ToState are empty for status events.
type Event struct {
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id"`
	OccurredAt time.Time `json:"occurred_at"`

	Seq        int    `json:"seq,omitempty"`
	Index      int    `json:"index,omitempty"`
	Total      int    `json:"total,omitempty"`
	NumeroGuia string `json:"numero_guia,omitempty"`
	Senha      string `json:"senha,omitempty"`
	Status     string `json:"status,omitempty"`
	Message    string `json:"message,omitempty"`

	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
