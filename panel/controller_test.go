package panel

import (
	"strings"
	"testing"

	"github.com/parleyhq/parley/transcript"
	"github.com/parleyhq/parley/types"
)

func snapshot(messages []types.Message, inProgress *types.Message) transcript.Snapshot {
	return transcript.Snapshot{Messages: messages, InProgress: inProgress}
}

func complete(turnID int64, uid, text string) types.Message {
	return types.Message{TurnID: turnID, UID: uid, Text: text, Status: types.StatusComplete}
}

func inProgress(turnID int64, uid, text string) *types.Message {
	return &types.Message{TurnID: turnID, UID: uid, Text: text, Status: types.StatusInProgress}
}

func TestController_AutoOpenOnce(t *testing.T) {
	c := New(Config{AgentUID: "1001"})

	if c.State() != StateClosed {
		t.Fatalf("initial state = %v, want closed", c.State())
	}

	// Empty snapshots never open the panel.
	c.Apply(snapshot(nil, nil))
	c.Apply(snapshot(nil, inProgress(1, "0", "   ")))
	if c.State() != StateClosed {
		t.Fatalf("empty snapshots opened the panel")
	}

	// First non-empty snapshot opens it.
	c.Apply(snapshot(nil, inProgress(1, "0", "hello")))
	if c.State() != StateOpen {
		t.Fatalf("state = %v, want open after first content", c.State())
	}

	// Closing manually stays closed on further content.
	c.ToggleOpen()
	if c.State() != StateClosed {
		t.Fatalf("state = %v, want closed after toggle", c.State())
	}
	c.Apply(snapshot([]types.Message{complete(1, "0", "hello world")}, nil))
	if c.State() != StateClosed {
		t.Error("auto-open fired a second time")
	}
}

func TestController_ManualToggleDisarmsAutoOpen(t *testing.T) {
	c := New(Config{AgentUID: "1001"})

	// User opens and closes before any content arrives.
	c.ToggleOpen()
	c.ToggleOpen()

	c.Apply(snapshot([]types.Message{complete(1, "0", "hi")}, nil))
	if c.State() != StateClosed {
		t.Error("auto-open fired after a manual toggle")
	}
}

func TestController_ToggleExpanded(t *testing.T) {
	c := New(Config{})

	// Ignored while closed.
	c.ToggleExpanded()
	if c.State() != StateClosed {
		t.Fatalf("state = %v, want closed", c.State())
	}

	c.ToggleOpen()
	c.ToggleExpanded()
	if c.State() != StateExpanded {
		t.Fatalf("state = %v, want expanded", c.State())
	}
	c.ToggleExpanded()
	if c.State() != StateOpen {
		t.Fatalf("state = %v, want open", c.State())
	}

	// ToggleOpen from expanded closes.
	c.ToggleExpanded()
	c.ToggleOpen()
	if c.State() != StateClosed {
		t.Fatalf("state = %v, want closed", c.State())
	}
}

func TestController_RoleClassification(t *testing.T) {
	c := New(Config{AgentUID: "007"})

	c.Apply(snapshot([]types.Message{
		complete(1, "0", "reserved agent"),
		complete(2, "7", "configured agent"),
		complete(3, "42", "human"),
	}, nil))

	entries := c.Visible()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	wantRoles := []types.Role{types.RoleAssistant, types.RoleAssistant, types.RoleUser}
	for i, want := range wantRoles {
		if entries[i].Role != want {
			t.Errorf("entries[%d].Role = %q, want %q", i, entries[i].Role, want)
		}
	}
}

func TestController_SetAgentUIDReclassifies(t *testing.T) {
	// The agent identity is unknown when the controller is built; it
	// arrives later and must apply to subsequent snapshots.
	c := New(Config{})

	snap := snapshot([]types.Message{complete(1, "1001", "greetings")}, nil)
	c.Apply(snap)
	if got := c.Visible()[0].Role; got != types.RoleUser {
		t.Fatalf("role before identity known = %q, want user", got)
	}

	c.SetAgentUID("1001")
	c.Apply(snap)
	if got := c.Visible()[0].Role; got != types.RoleAssistant {
		t.Errorf("role after SetAgentUID = %q, want assistant", got)
	}
}

func TestController_VisibleSequence(t *testing.T) {
	c := New(Config{AgentUID: "1001"})

	c.Apply(snapshot(
		[]types.Message{complete(1, "42", "question"), complete(2, "0", "answer")},
		inProgress(3, "42", "follow-up"),
	))

	entries := c.Visible()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[2].Message.Status != types.StatusInProgress {
		t.Errorf("last entry status = %q, want in-progress", entries[2].Message.Status)
	}

	// Whitespace-only in-progress text is hidden.
	c.Apply(snapshot(
		[]types.Message{complete(1, "42", "question")},
		inProgress(2, "0", "  \n"),
	))
	if got := len(c.Visible()); got != 1 {
		t.Errorf("got %d entries, want 1 (blank in-progress hidden)", got)
	}
}

func TestController_ScrollOnFinalized(t *testing.T) {
	c := New(Config{AgentUID: "1001"})

	// A newly finalized message scrolls regardless of growth size.
	d := c.Apply(snapshot([]types.Message{complete(1, "0", "a")}, nil))
	if d != ScrollNow {
		t.Errorf("directive = %v, want ScrollNow", d)
	}

	// Same snapshot again: nothing new, no scroll.
	d = c.Apply(snapshot([]types.Message{complete(1, "0", "a")}, nil))
	if d != ScrollNone {
		t.Errorf("directive = %v, want ScrollNone", d)
	}
}

func TestController_ScrollOnGrowth(t *testing.T) {
	c := New(Config{AgentUID: "1001", GrowthDelta: 20})

	d := c.Apply(snapshot(nil, inProgress(1, "0", "short")))
	if d != ScrollNone {
		t.Fatalf("growth below delta scrolled: %v", d)
	}

	long := strings.Repeat("x", 30)
	d = c.Apply(snapshot(nil, inProgress(1, "0", long)))
	if d != ScrollNowAndBackstop {
		t.Fatalf("directive = %v, want ScrollNowAndBackstop while streaming", d)
	}

	// Growth resets at each scroll; small increments stay quiet.
	d = c.Apply(snapshot(nil, inProgress(1, "0", long+"y")))
	if d != ScrollNone {
		t.Errorf("directive = %v, want ScrollNone after reset", d)
	}
}

func TestController_DetachSuppressesScroll(t *testing.T) {
	c := New(Config{AgentUID: "1001", FollowThreshold: 100})

	c.OnScroll(250)
	if c.Following() {
		t.Fatal("view should detach beyond the threshold")
	}

	d := c.Apply(snapshot([]types.Message{complete(1, "0", strings.Repeat("z", 200))}, nil))
	if d != ScrollNone {
		t.Fatalf("detached view scrolled: %v", d)
	}

	// Re-attach within the threshold; the backlog does not replay as
	// one giant delta, but new finalized content scrolls again.
	c.OnScroll(40)
	if !c.Following() {
		t.Fatal("view should re-attach within the threshold")
	}
	d = c.Apply(snapshot([]types.Message{
		complete(1, "0", strings.Repeat("z", 200)),
		complete(2, "42", "ok"),
	}, nil))
	if d != ScrollNow {
		t.Errorf("directive = %v, want ScrollNow after re-attach", d)
	}
}

func TestController_BackstopOnlyWhileStreaming(t *testing.T) {
	c := New(Config{AgentUID: "1001"})

	// Finalized-only snapshot: immediate scroll, no backstop needed.
	d := c.Apply(snapshot([]types.Message{complete(1, "0", "done")}, nil))
	if d != ScrollNow {
		t.Errorf("directive = %v, want ScrollNow", d)
	}

	// Finalized message arriving while another streams: backstop.
	d = c.Apply(snapshot(
		[]types.Message{complete(1, "0", "done"), complete(2, "42", "also done")},
		inProgress(3, "0", "still going"),
	))
	if d != ScrollNowAndBackstop {
		t.Errorf("directive = %v, want ScrollNowAndBackstop", d)
	}
}

func TestController_Defaults(t *testing.T) {
	c := New(Config{})
	if c.config.FollowThreshold != DefaultFollowThreshold {
		t.Errorf("FollowThreshold = %d, want %d", c.config.FollowThreshold, DefaultFollowThreshold)
	}
	if c.config.GrowthDelta != DefaultGrowthDelta {
		t.Errorf("GrowthDelta = %d, want %d", c.config.GrowthDelta, DefaultGrowthDelta)
	}
	if c.BackstopDelay() != DefaultBackstopDelay {
		t.Errorf("BackstopDelay = %v, want %v", c.BackstopDelay(), DefaultBackstopDelay)
	}
	if !c.Following() {
		t.Error("new controller should start following")
	}
}
