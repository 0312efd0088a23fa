package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrSessionNotFound is returned when no records exist for a session.
var ErrSessionNotFound = errors.New("session not found in archive")

// Reader provides read-only views over an archive dataset.
type Reader struct {
	dataset lode.Dataset
}

// NewReader creates a reader over an existing store's dataset.
func NewReader(store *Store) *Reader {
	return &Reader{dataset: store.Dataset()}
}

// NewFSReader creates a reader with filesystem storage rooted at root.
// Uses the same layout and codec as the write path.
func NewFSReader(cfg Config, root string) (*Reader, error) {
	ds, err := newDataset(cfg.Dataset, lode.NewFSFactory(root))
	if err != nil {
		return nil, err
	}
	return &Reader{dataset: ds}, nil
}

// NewS3Reader creates a reader with an S3 storage backend.
func NewS3Reader(cfg Config, s3cfg S3Config) (*Reader, error) {
	factory, err := newS3Factory(s3cfg)
	if err != nil {
		return nil, err
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, err
	}
	return &Reader{dataset: ds}, nil
}

// SessionSummary is one closed session as listed from the archive.
type SessionSummary struct {
	SessionID        string `json:"session_id"`
	Channel          string `json:"channel"`
	Day              string `json:"day"`
	UID              string `json:"uid"`
	AgentUID         string `json:"agent_uid"`
	Outcome          string `json:"outcome"`
	MessageCount     int64  `json:"message_count"`
	InterruptedCount int64  `json:"interrupted_count"`
	DurationMS       int64  `json:"duration_ms"`
	StartedAt        string `json:"started_at"`
	EndedAt          string `json:"ended_at"`
}

// StatsSummary aggregates the archive, optionally scoped to a channel.
type StatsSummary struct {
	Sessions         int64            `json:"sessions"`
	Messages         int64            `json:"messages"`
	Interrupted      int64            `json:"interrupted"`
	TotalDurationMS  int64            `json:"total_duration_ms"`
	OutcomeBreakdown map[string]int64 `json:"outcomes"`
}

// ListSessions returns session summaries, newest first. An empty
// channel lists all channels.
func (r *Reader) ListSessions(ctx context.Context, channel string) ([]SessionSummary, error) {
	records, err := r.collect(ctx, "channel", channel, RecordKindSession)
	if err != nil {
		return nil, err
	}

	// Last record per session wins; a rewritten summary supersedes.
	bySession := make(map[string]SessionSummary)
	for _, rec := range records {
		var s SessionSummary
		if err := remarshal(rec, &s); err != nil {
			continue
		}
		if channel != "" && s.Channel != channel {
			continue
		}
		bySession[s.SessionID] = s
	}

	out := make([]SessionSummary, 0, len(bySession))
	for _, s := range bySession {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt > out[j].StartedAt
		}
		return out[i].SessionID > out[j].SessionID
	})
	return out, nil
}

// LoadTranscript returns a session's messages ordered by turn.
// Duplicate records for a turn (at-least-once writes) collapse to the
// last written one.
func (r *Reader) LoadTranscript(ctx context.Context, sessionID string) ([]MessageRecord, error) {
	if sessionID == "" {
		return nil, errors.New("archive: session id is required")
	}

	records, err := r.collect(ctx, "session_id", sessionID, RecordKindMessage)
	if err != nil {
		return nil, err
	}

	byTurn := make(map[int64]MessageRecord)
	for _, rec := range records {
		var m MessageRecord
		if err := remarshal(rec, &m); err != nil {
			continue
		}
		if m.SessionID != sessionID {
			continue
		}
		byTurn[m.TurnID] = m
	}
	if len(byTurn) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	out := make([]MessageRecord, 0, len(byTurn))
	for _, m := range byTurn {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnID < out[j].TurnID })
	return out, nil
}

// SessionDetail combines a session summary with its full transcript.
type SessionDetail struct {
	Session  SessionSummary  `json:"session"`
	Messages []MessageRecord `json:"messages"`
}

// InspectSession loads a session's summary and transcript together.
func (r *Reader) InspectSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	messages, err := r.LoadTranscript(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	detail := &SessionDetail{Messages: messages}
	sessions, err := r.ListSessions(ctx, messages[0].Channel)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.SessionID == sessionID {
			detail.Session = s
			break
		}
	}
	return detail, nil
}

// Stats aggregates session summaries. An empty channel covers all
// channels.
func (r *Reader) Stats(ctx context.Context, channel string) (*StatsSummary, error) {
	sessions, err := r.ListSessions(ctx, channel)
	if err != nil {
		return nil, err
	}

	stats := &StatsSummary{OutcomeBreakdown: make(map[string]int64)}
	for _, s := range sessions {
		stats.Sessions++
		stats.Messages += s.MessageCount
		stats.Interrupted += s.InterruptedCount
		stats.TotalDurationMS += s.DurationMS
		stats.OutcomeBreakdown[s.Outcome]++
	}
	return stats, nil
}

// collect reads all records of the given kind from snapshots matching
// the partition filter. Path filtering is a coarse pre-filter; record
// fields are authoritative.
func (r *Reader) collect(ctx context.Context, partitionKey, partitionValue, kind string) ([]map[string]any, error) {
	snapshots, err := r.dataset.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: list snapshots: %w", err)
	}

	var out []map[string]any
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, partitionKey, partitionValue) {
			continue
		}

		data, err := r.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("archive: read snapshot %s: %w", snap.ID, err)
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if record["record_kind"] != kind {
				continue
			}
			out = append(out, record)
		}
	}
	return out, nil
}

// snapshotMatchesFilter checks a snapshot's file paths for an exact
// Hive key=value segment. Exact segment match avoids substring false
// positives (session_id=s-1 vs session_id=s-10).
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

// remarshal converts a decoded record map into a typed record.
func remarshal(record map[string]any, out any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
