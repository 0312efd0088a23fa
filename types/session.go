package types

import "time"

// SessionMeta identifies one conversation session. All log entries and
// archive records carry these fields.
type SessionMeta struct {
	// SessionID is the client-generated session identifier.
	SessionID string
	// Channel is the realtime channel name.
	Channel string
	// UID is the local participant identity (canonical form).
	UID string
	// AgentUID is the assistant identity assigned by the agent service
	// (canonical form). Empty until the agent has started.
	AgentUID string
	// TenantID is the backend tenant, when configured.
	TenantID string
	// StartedAt is the session start time.
	StartedAt time.Time
}

// SessionOutcomeStatus classifies how a session ended.
type SessionOutcomeStatus string

const (
	// OutcomeCompleted means the session ended by user request with the
	// agent stopped cleanly.
	OutcomeCompleted SessionOutcomeStatus = "completed"
	// OutcomeAgentError means the agent service failed to start or stop.
	OutcomeAgentError SessionOutcomeStatus = "agent_error"
	// OutcomeChannelError means the realtime channel disconnected and
	// could not be recovered.
	OutcomeChannelError SessionOutcomeStatus = "channel_error"
)

// SessionOutcome summarizes a finished session.
type SessionOutcome struct {
	Status  SessionOutcomeStatus
	Message string
}

// SessionReport is the final report produced when a session closes.
type SessionReport struct {
	Meta             SessionMeta
	Outcome          SessionOutcome
	MessageCount     int64
	InterruptedCount int64
	Duration         time.Duration
	EndedAt          time.Time
	StoragePath      string
}

// DeriveDay computes the archive partition day from session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
