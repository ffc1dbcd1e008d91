package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published by the service.
const (
	TypeUserRegistered     = "user.registered"
	TypeTransactionCreated = "transaction.created"
	TypeTransactionUpdated = "transaction.updated"
	TypeTransactionDeleted = "transaction.deleted"
)

const source = "fintrack"

// Event is the envelope for every published message.
type Event struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	OwnerID     string          `json:"owner_id,omitempty"`
	Version     int             `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Source      string          `json:"source"`
	RequestID   string          `json:"request_id,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// New creates an event with a generated ID and the current timestamp.
func New(eventType, aggregateID, ownerID string, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		AggregateID: aggregateID,
		OwnerID:     ownerID,
		Version:     1,
		Timestamp:   time.Now().UTC(),
		Source:      source,
		Data:        payload,
	}, nil
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
