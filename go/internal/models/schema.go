package models

import "encoding/json"

// DomainSchema is a named JSON-Schema document that domain data must satisfy.
type DomainSchema struct {
	Name         string          `json:"name"`
	DomainSchema json.RawMessage `json:"domain_schema"`
}

// Domain is a record of a schema, keyed by (SchemaName, DomainID).
type Domain struct {
	SchemaName string         `json:"schema_name"`
	DomainID   string         `json:"domain_id"`
	Data       map[string]any `json:"data"`
	Tags       [][]string     `json:"tags"`
}

// Vars exposes the domain to condition expressions.
func (d Domain) Vars() map[string]any {
	tags := make([]any, 0, len(d.Tags))
	for _, group := range d.Tags {
		g := make([]any, len(group))
		for i, t := range group {
			g[i] = t
		}
		tags = append(tags, g)
	}
	return map[string]any{
		"schema_name": d.SchemaName,
		"domain_id":   d.DomainID,
		"data":        d.Data,
		"tags":        tags,
	}
}
