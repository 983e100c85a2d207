package models

import "github.com/google/uuid"

const (
	DefaultPerPage = 100
	MaxPerPage     = 200
)

// Page is a 1-based page request.
type Page struct {
	Page    int
	PerPage int
}

// Normalize clamps p into the accepted range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

func (p Page) Limit() int {
	return p.Normalize().PerPage
}

// SchemaFilter selects schemas by example. Empty fields match everything.
type SchemaFilter struct {
	Name string
}

type DomainFilter struct {
	SchemaName string
	DomainID   string
}

type HookFilter struct {
	Type       HookType
	SchemaName string
	EventName  string
}

type EventFilter struct {
	SchemaName string
	ID         *uuid.UUID
	EventName  string
	QueueName  string
	Status     EventStatus
}
