package events

import (
	nanoid "github.com/matoous/go-nanoid/v2"
)

type BaseEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

func (e BaseEvent) EventType() string { return e.Type }

func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID: NewID("evt_"),
		Type:    eventType,
	}
}

// NewID returns a random identifier with the given prefix.
func NewID(prefix string) string {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return prefix + id
}
