package archive

import (
	"testing"
	"time"

	"github.com/parleyhq/parley/types"
)

func testMeta() *types.SessionMeta {
	return &types.SessionMeta{
		SessionID: "sess-001",
		Channel:   "demo",
		UID:       "42",
		AgentUID:  "1001",
		TenantID:  "tenant-a",
		StartedAt: time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC),
	}
}

func testReport(meta *types.SessionMeta) *types.SessionReport {
	return &types.SessionReport{
		Meta:             *meta,
		Outcome:          types.SessionOutcome{Status: types.OutcomeCompleted},
		MessageCount:     2,
		InterruptedCount: 1,
		Duration:         90 * time.Second,
		EndedAt:          meta.StartedAt.Add(90 * time.Second),
		StoragePath:      PathFor(meta),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store, err := NewMemoryStore(Config{Dataset: "parley"})
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	defer store.Close()

	meta := testMeta()
	messages := []types.Message{
		{TurnID: 1, UID: "42", Text: "hello", Status: types.StatusComplete},
		{TurnID: 2, UID: "1001", Text: "hi there", Status: types.StatusInterrupted},
	}
	if err := store.WriteMessages(t.Context(), meta, messages); err != nil {
		t.Fatalf("WriteMessages failed: %v", err)
	}
	if err := store.WriteReport(t.Context(), testReport(meta)); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	reader := NewReader(store)

	transcript, err := reader.LoadTranscript(t.Context(), "sess-001")
	if err != nil {
		t.Fatalf("LoadTranscript failed: %v", err)
	}
	if len(transcript) != 2 {
		t.Fatalf("got %d messages, want 2", len(transcript))
	}
	if transcript[0].TurnID != 1 || transcript[1].TurnID != 2 {
		t.Errorf("transcript not ordered by turn: %+v", transcript)
	}
	if transcript[0].Role != string(types.RoleUser) {
		t.Errorf("turn 1 role = %q, want user", transcript[0].Role)
	}
	if transcript[1].Role != string(types.RoleAssistant) {
		t.Errorf("turn 2 role = %q, want assistant", transcript[1].Role)
	}
	if transcript[1].Status != string(types.StatusInterrupted) {
		t.Errorf("turn 2 status = %q, want interrupted", transcript[1].Status)
	}

	sessions, err := reader.ListSessions(t.Context(), "demo")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	s := sessions[0]
	if s.SessionID != "sess-001" || s.Outcome != "completed" {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.MessageCount != 2 || s.InterruptedCount != 1 || s.DurationMS != 90000 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.Day != "2026-02-03" {
		t.Errorf("Day = %q, want 2026-02-03", s.Day)
	}
}

func TestStore_EmptyBatchIsNoop(t *testing.T) {
	store, err := NewMemoryStore(Config{Dataset: "parley"})
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}

	if err := store.WriteMessages(t.Context(), testMeta(), nil); err != nil {
		t.Fatalf("empty write failed: %v", err)
	}
}

func TestReader_SessionNotFound(t *testing.T) {
	store, err := NewMemoryStore(Config{Dataset: "parley"})
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}

	_, err = NewReader(store).LoadTranscript(t.Context(), "missing")
	if err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestReader_ChannelFilter(t *testing.T) {
	store, err := NewMemoryStore(Config{Dataset: "parley"})
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}

	metaA := testMeta()
	metaB := testMeta()
	metaB.SessionID = "sess-002"
	metaB.Channel = "other"

	if err := store.WriteReport(t.Context(), testReport(metaA)); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	if err := store.WriteReport(t.Context(), testReport(metaB)); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	reader := NewReader(store)
	sessions, err := reader.ListSessions(t.Context(), "demo")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Channel != "demo" {
		t.Errorf("channel filter leaked: %+v", sessions)
	}

	all, err := reader.ListSessions(t.Context(), "")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d sessions for all channels, want 2", len(all))
	}
}

func TestReader_Stats(t *testing.T) {
	store, err := NewMemoryStore(Config{Dataset: "parley"})
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}

	meta := testMeta()
	if err := store.WriteReport(t.Context(), testReport(meta)); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	failed := testMeta()
	failed.SessionID = "sess-002"
	report := testReport(failed)
	report.Outcome = types.SessionOutcome{Status: types.OutcomeChannelError, Message: "connection lost"}
	report.MessageCount = 1
	if err := store.WriteReport(t.Context(), report); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	stats, err := NewReader(store).Stats(t.Context(), "demo")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Sessions != 2 || stats.Messages != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.OutcomeBreakdown["completed"] != 1 || stats.OutcomeBreakdown["channel_error"] != 1 {
		t.Errorf("unexpected outcomes: %+v", stats.OutcomeBreakdown)
	}
}

func TestPathFor(t *testing.T) {
	got := PathFor(testMeta())
	want := "channel=demo/day=2026-02-03/session_id=sess-001"
	if got != want {
		t.Errorf("PathFor = %q, want %q", got, want)
	}
}

func TestParseS3Path(t *testing.T) {
	cases := []struct {
		in             string
		bucket, prefix string
	}{
		{"bucket", "bucket", ""},
		{"bucket/prefix", "bucket", "prefix"},
		{"bucket/a/b", "bucket", "a/b"},
	}
	for _, tc := range cases {
		bucket, prefix := ParseS3Path(tc.in)
		if bucket != tc.bucket || prefix != tc.prefix {
			t.Errorf("ParseS3Path(%q) = %q, %q", tc.in, bucket, prefix)
		}
	}
}
