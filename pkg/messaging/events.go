package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published by the planner
const (
	EventRunApplied    = "planning.run.applied"
	EventShiftsCreated = "planning.shifts.created"
)

// Exchange names
const (
	ExchangePlanningEvents = "planning.events"
)

// Event is the envelope for all published events
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates an event envelope with a serialised payload
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		Data:          payload,
	}, nil
}

// UnmarshalData deserialises the event payload into v
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// RunAppliedEvent is published after an apply run commits
type RunAppliedEvent struct {
	RunID        string    `json:"run_id"`
	TeamID       string    `json:"team_id"`
	HorizonStart time.Time `json:"horizon_start"`
	HorizonEnd   time.Time `json:"horizon_end"`
	Initiator    string    `json:"initiator,omitempty"`
	ShiftCount   int       `json:"shift_count"`
	SystemScore  float64   `json:"system_score"`
}

// ShiftsCreatedEvent carries the shift identifiers written by an apply run
type ShiftsCreatedEvent struct {
	RunID    string   `json:"run_id"`
	TeamID   string   `json:"team_id"`
	ShiftIDs []string `json:"shift_ids"`
}
