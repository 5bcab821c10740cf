package models

import "encoding/json"

// ExecRequest is the POST /exec payload: one bridge call.
type ExecRequest struct {
	Action string            `json:"action"`
	Args   []json.RawMessage `json:"args"`
}

// ExecResponse is returned by POST /exec. Exactly one of Message and Error is set.
type ExecResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SessionResponse is returned by GET /session.
type SessionResponse struct {
	State            string `json:"state"`
	Generation       uint64 `json:"generation"`
	ContainerID      string `json:"container_id,omitempty"`
	ContainerVersion string `json:"container_version,omitempty"`
	ContainerDefault bool   `json:"container_default"`
	Source           string `json:"source,omitempty"`
	PendingHits      int    `json:"pending_hits"`
	Error            string `json:"error,omitempty"`
}

// EventIngestRequest is the collector's POST /events payload.
// event_id doubles as the idempotency key so redelivered hits are not counted twice.
type EventIngestRequest struct {
	EventID    string                 `json:"event_id,omitempty"`
	EventName  string                 `json:"event_name"`
	Timestamp  string                 `json:"timestamp"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// EventIngestResponse is returned by the collector's POST /events.
// Duplicate indicates idempotent success (the event already existed).
type EventIngestResponse struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}
