// Package codec converts opaque payloads to and from their column encoding.
// It is shared by the SQL repository implementations.
package codec

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"opledger/internal/model"
)

// EncodePayload returns the JSON encoding of p, or nil for a nil map so the
// column stays NULL.
func EncodePayload(p model.Payload) (any, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

// DecodePayload parses a nullable JSON column.
func DecodePayload(raw []byte) (model.Payload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p model.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// NullInt converts a nullable integer column.
func NullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// NullString converts a nullable text column.
func NullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// IntArg returns a driver argument for a nullable integer.
func IntArg(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// StringArg returns a driver argument for a nullable string.
func StringArg(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
