package eventlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a pipeline lifecycle event.
type EventType string

// Event types.
const (
	EventRunStarted     EventType = "run_started"
	EventRunCompleted   EventType = "run_completed"
	EventRunFailed      EventType = "run_failed"
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventStageFailed    EventType = "stage_failed"
)

// Event is one line of the event log.
//
//nolint:govet // field order follows the JSON layout
type Event struct {
	Time       time.Time `json:"time"`
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage,omitempty"`
	Model      string    `json:"model,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Artifacts  []string  `json:"artifacts,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, runID, stage string) *Event {
	return &Event{
		Time:  time.Now().UTC(),
		Type:  eventType,
		RunID: runID,
		Stage: stage,
	}
}

// WithDuration sets the event's duration.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.DurationMS = d.Milliseconds()
	return e
}

// WithError sets the event's error message.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// ToJSON serializes the event.
func (e *Event) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// FromJSON parses an event.
func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}
