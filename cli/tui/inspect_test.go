package tui

import (
	"strings"
	"testing"

	"github.com/parleyhq/parley/archive"
)

func TestRenderInspectStatic_Session(t *testing.T) {
	detail := &archive.SessionDetail{
		Session: archive.SessionSummary{
			SessionID:    "sess-001",
			Channel:      "demo",
			Day:          "2026-02-07",
			UID:          "42",
			AgentUID:     "1001",
			Outcome:      "completed",
			MessageCount: 2,
		},
		Messages: []archive.MessageRecord{
			{TurnID: 1, Role: "user", Text: "hello", Status: "complete"},
			{TurnID: 2, Role: "assistant", Text: "hi there", Status: "interrupted"},
		},
	}

	out := RenderInspectStatic("inspect_session", detail)
	for _, want := range []string{"sess-001", "demo", "completed", "hello", "hi there"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderInspectStatic_InvalidData(t *testing.T) {
	out := RenderInspectStatic("inspect_session", 42)
	if !strings.Contains(out, "Invalid data type") {
		t.Errorf("expected invalid data message, got:\n%s", out)
	}
}

func TestRenderStatsStatic_Sessions(t *testing.T) {
	stats := &archive.StatsSummary{
		Sessions:        3,
		Messages:        12,
		Interrupted:     1,
		TotalDurationMS: 90000,
		OutcomeBreakdown: map[string]int64{
			"completed":     2,
			"channel_error": 1,
		},
	}

	out := RenderStatsStatic("stats_sessions", stats)
	for _, want := range []string{"Sessions", "Messages", "completed", "channel_error", "1m30s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
