package events

import (
	"encoding/json"

	"github.com/domainhooks/hooks/go/internal/models"
)

// InsertEventRequest is the body of POST .../domains/{domain_id}/events.
type InsertEventRequest struct {
	EventName string          `json:"event_name"`
	Metadata  json.RawMessage `json:"metadata"`
}

// UpdateEventRequest is the body of PATCH .../events/{event_id}.
type UpdateEventRequest struct {
	Status  models.EventStatus `json:"status"`
	Message *string            `json:"message,omitempty"`
}
