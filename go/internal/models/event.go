package models

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the delivery state of a DomainEvent.
type EventStatus string

const (
	EventStatusCreated    EventStatus = "created"
	EventStatusProcessing EventStatus = "processing"
	EventStatusProcessed  EventStatus = "processed"
	EventStatusError      EventStatus = "error"
	EventStatusCanceled   EventStatus = "canceled"
	EventStatusFailed     EventStatus = "failed"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusCreated, EventStatusProcessing, EventStatusProcessed,
		EventStatusError, EventStatusCanceled, EventStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s EventStatus) Terminal() bool {
	switch s {
	case EventStatusProcessed, EventStatusFailed, EventStatusCanceled:
		return true
	}
	return false
}

// DomainEvent is one (event, hook) pair awaiting or having completed delivery.
type DomainEvent struct {
	ID             uuid.UUID       `json:"id"`
	EventName      string          `json:"event_name"`
	SchemaName     string          `json:"schema_name"`
	DomainID       string          `json:"domain_id"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Status         EventStatus     `json:"status"`
	Hook           Hook            `json:"hook"`
	Eta            time.Time       `json:"eta"`
	FailureMessage *string         `json:"failure_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of e, including its hook snapshot.
func (e DomainEvent) Clone() DomainEvent {
	e.Metadata = slices.Clone(e.Metadata)
	e.Hook = e.Hook.Clone()
	if e.FailureMessage != nil {
		msg := *e.FailureMessage
		e.FailureMessage = &msg
	}
	return e
}

// WebhookPayload is the body POSTed to a webhook callback.
type WebhookPayload struct {
	ID         uuid.UUID `json:"id"`
	EventName  string    `json:"event_name"`
	SchemaName string    `json:"schema_name"`
	DomainID   string    `json:"domain_id"`
}

// Payload builds the webhook body for e.
func (e DomainEvent) Payload() WebhookPayload {
	return WebhookPayload{
		ID:         e.ID,
		EventName:  e.EventName,
		SchemaName: e.SchemaName,
		DomainID:   e.DomainID,
	}
}

// StatusChange is published whenever a DomainEvent changes status.
type StatusChange struct {
	EventID    uuid.UUID   `json:"event_id"`
	SchemaName string      `json:"schema_name"`
	DomainID   string      `json:"domain_id"`
	EventName  string      `json:"event_name"`
	HookID     uuid.UUID   `json:"hook_id"`
	Status     EventStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	At         time.Time   `json:"at"`
}

// Change builds the StatusChange describing e's current status.
func (e DomainEvent) Change(at time.Time) StatusChange {
	c := StatusChange{
		EventID:    e.ID,
		SchemaName: e.SchemaName,
		DomainID:   e.DomainID,
		EventName:  e.EventName,
		HookID:     e.Hook.ID,
		Status:     e.Status,
		At:         at,
	}
	if e.FailureMessage != nil {
		c.Message = *e.FailureMessage
	}
	return c
}
