package schemas

import "encoding/json"

// UpsertSchemaRequest creates or replaces a schema by name.
type UpsertSchemaRequest struct {
	Name         string          `json:"name"`
	DomainSchema json.RawMessage `json:"domain_schema"`
}
