package sqlutil

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go types and nullable column types

// ToSqlString converts an empty Go string to NULL.
func ToSqlString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: val, Valid: true}
}

// ToSqlStringPtr converts a Go string pointer to sql.NullString
func ToSqlStringPtr(val *string) sql.NullString {
	if val == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *val, Valid: true}
}

// FromSqlStringPtr converts sql.NullString to Go string pointer
func FromSqlStringPtr(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	return &val.String
}

// ToJSONB marshals v for a nullable JSONB column. A nil v is stored as NULL.
func ToJSONB(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{}, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return pqtype.NullRawMessage{RawMessage: raw, Valid: len(raw) > 0}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal jsonb: %w", err)
	}
	if string(b) == "null" {
		return pqtype.NullRawMessage{}, nil
	}
	return pqtype.NullRawMessage{RawMessage: b, Valid: true}, nil
}

// FromJSONB unmarshals a nullable JSONB column into dst. NULL leaves dst untouched.
func FromJSONB(val pqtype.NullRawMessage, dst any) error {
	if !val.Valid || len(val.RawMessage) == 0 {
		return nil
	}
	if err := json.Unmarshal(val.RawMessage, dst); err != nil {
		return fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return nil
}

// RawJSONB copies a nullable JSONB column into a json.RawMessage, nil for NULL.
func RawJSONB(val pqtype.NullRawMessage) json.RawMessage {
	if !val.Valid || len(val.RawMessage) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(val.RawMessage))
	copy(out, val.RawMessage)
	return out
}
