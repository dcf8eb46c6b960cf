// Package eventsource persists the asset's event history as an
// append-only, optimistically versioned stream, with in-memory and
// SQLite backings.
package eventsource

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one persisted record. Version is its position within the
// stream, starting at 0.
type Event struct {
	ID        string          `json:"id"`
	StreamID  string          `json:"streamId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Version   int             `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an unversioned event; the store assigns Version on
// append. data is marshaled to JSON and may be nil.
func NewEvent(streamID, eventType string, data any) (*Event, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Event{
		ID:        uuid.NewString(),
		StreamID:  streamID,
		Type:      eventType,
		Data:      raw,
		Version:   -1,
		Timestamp: time.Now().UTC(),
	}, nil
}
