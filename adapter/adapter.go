// Package adapter defines the downstream event boundary.
//
// Adapters publish session-closed notifications to external systems.
// The session conductor owns adapter lifecycle; users provide
// configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/parleyhq/parley/types"
)

// SchemaVersion is the event payload schema version.
const SchemaVersion = "1.0.0"

// EventTypeSessionClosed is the event_type for session-closed events.
const EventTypeSessionClosed = "session_closed"

// SessionClosedEvent is the payload published when a session ends.
type SessionClosedEvent struct {
	SchemaVersion    string `json:"schema_version"`
	EventType        string `json:"event_type"` // always "session_closed"
	Channel          string `json:"channel"`
	UID              string `json:"uid"`
	AgentUID         string `json:"agent_uid"`
	TenantID         string `json:"tenant_id,omitempty"`
	SessionID        string `json:"session_id"`
	Outcome          string `json:"outcome"` // completed, agent_error, channel_error
	MessageCount     int64  `json:"message_count"`
	InterruptedCount int64  `json:"interrupted_count"`
	DurationMs       int64  `json:"duration_ms"`
	StartedAt        string `json:"started_at"` // ISO 8601
	EndedAt          string `json:"ended_at"`   // ISO 8601
	StoragePath      string `json:"storage_path,omitempty"`
}

// FromReport builds the session-closed event from a final report.
func FromReport(report *types.SessionReport) *SessionClosedEvent {
	meta := report.Meta
	return &SessionClosedEvent{
		SchemaVersion:    SchemaVersion,
		EventType:        EventTypeSessionClosed,
		Channel:          meta.Channel,
		UID:              meta.UID,
		AgentUID:         meta.AgentUID,
		TenantID:         meta.TenantID,
		SessionID:        meta.SessionID,
		Outcome:          string(report.Outcome.Status),
		MessageCount:     report.MessageCount,
		InterruptedCount: report.InterruptedCount,
		DurationMs:       report.Duration.Milliseconds(),
		StartedAt:        meta.StartedAt.UTC().Format(time.RFC3339),
		EndedAt:          report.EndedAt.UTC().Format(time.RFC3339),
		StoragePath:      report.StoragePath,
	}
}

// Adapter publishes session-closed events to a downstream system.
// Implementations must be safe for single-use per session.
type Adapter interface {
	// Publish sends a session-closed event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionClosedEvent) error

	// Close releases adapter resources.
	Close() error
}
