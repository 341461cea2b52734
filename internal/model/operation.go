package model

import "time"

// Status is the lifecycle state of an operation record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}

// Payload is schema-less structured data carried through the ledger unchanged.
type Payload map[string]any

// Operation records the attempts made to perform one idempotent external call.
// This is a pure domain model with no database-specific dependencies or tags.
type Operation struct {
	ID              string     `json:"id"`
	OperationType   string     `json:"operation_type"`
	OperationID     string     `json:"operation_id"`
	Endpoint        string     `json:"endpoint"`
	Method          string     `json:"method"`
	RequestPayload  Payload    `json:"request_payload,omitempty"`
	ResponsePayload Payload    `json:"response_payload,omitempty"`
	ResponseCode    *int       `json:"response_code,omitempty"`
	Status          Status     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	Metadata        Payload    `json:"metadata,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Version         int64      `json:"version"`
}
