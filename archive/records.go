package archive

import (
	"time"

	"github.com/parleyhq/parley/types"
)

// SchemaVersion is the archive record schema version.
const SchemaVersion = "1.0.0"

// RecordKind discriminator values.
const (
	RecordKindMessage = "message"
	RecordKindSession = "session"
)

// MessageRecord is the storage format for one finalized transcript
// message. Partition keys (channel, day, session_id) are carried on
// every record for the Hive layout.
type MessageRecord struct {
	RecordKind    string `json:"record_kind"`
	SchemaVersion string `json:"schema_version"`

	TurnID int64  `json:"turn_id"`
	UID    string `json:"uid"`
	Role   string `json:"role"`
	Text   string `json:"text"`
	Status string `json:"status"`

	// Partition keys
	Channel   string `json:"channel"`
	Day       string `json:"day"`
	SessionID string `json:"session_id"`
}

// SessionRecord is the storage format for a closed session's summary,
// written once when the session ends.
type SessionRecord struct {
	RecordKind    string `json:"record_kind"`
	SchemaVersion string `json:"schema_version"`

	UID              string `json:"uid"`
	AgentUID         string `json:"agent_uid"`
	TenantID         string `json:"tenant_id,omitempty"`
	Outcome          string `json:"outcome"`
	OutcomeMessage   string `json:"outcome_message,omitempty"`
	MessageCount     int64  `json:"message_count"`
	InterruptedCount int64  `json:"interrupted_count"`
	DurationMS       int64  `json:"duration_ms"`
	StartedAt        string `json:"started_at"`
	EndedAt          string `json:"ended_at"`

	// Partition keys
	Channel   string `json:"channel"`
	Day       string `json:"day"`
	SessionID string `json:"session_id"`
}

// toMessageRecord converts a finalized message for storage.
func toMessageRecord(meta *types.SessionMeta, m types.Message) MessageRecord {
	return MessageRecord{
		RecordKind:    RecordKindMessage,
		SchemaVersion: SchemaVersion,
		TurnID:        m.TurnID,
		UID:           m.UID,
		Role:          string(types.RoleOf(m.UID, meta.AgentUID)),
		Text:          m.Text,
		Status:        string(m.Status),
		Channel:       meta.Channel,
		Day:           types.DeriveDay(meta.StartedAt),
		SessionID:     meta.SessionID,
	}
}

// toSessionRecord converts a final session report for storage.
func toSessionRecord(report *types.SessionReport) SessionRecord {
	meta := report.Meta
	return SessionRecord{
		RecordKind:       RecordKindSession,
		SchemaVersion:    SchemaVersion,
		UID:              meta.UID,
		AgentUID:         meta.AgentUID,
		TenantID:         meta.TenantID,
		Outcome:          string(report.Outcome.Status),
		OutcomeMessage:   report.Outcome.Message,
		MessageCount:     report.MessageCount,
		InterruptedCount: report.InterruptedCount,
		DurationMS:       report.Duration.Milliseconds(),
		StartedAt:        meta.StartedAt.UTC().Format(time.RFC3339),
		EndedAt:          report.EndedAt.UTC().Format(time.RFC3339),
		Channel:          meta.Channel,
		Day:              types.DeriveDay(meta.StartedAt),
		SessionID:        meta.SessionID,
	}
}
