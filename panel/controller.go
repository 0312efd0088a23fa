// Package panel holds the transcript presentation state machine.
//
// The controller is pure application state: visibility, one-shot
// auto-open, role classification, and the follow/detach auto-scroll
// policy. It knows nothing about terminals; renderers feed it scroll
// positions and snapshots and act on the directives it returns.
package panel

import (
	"strings"
	"sync"
	"time"

	"github.com/parleyhq/parley/transcript"
	"github.com/parleyhq/parley/types"
)

// Defaults for controller configuration. Thresholds are in renderer
// units: a pixel UI passes pixels, a terminal UI passes rows.
const (
	DefaultFollowThreshold = 100
	DefaultGrowthDelta     = 20
	DefaultBackstopDelay   = 100 * time.Millisecond
)

// State is the panel visibility state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateExpanded
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateExpanded:
		return "expanded"
	default:
		return "unknown"
	}
}

// ScrollDirective tells the renderer what to do after Apply.
type ScrollDirective int

const (
	// ScrollNone leaves the view where it is.
	ScrollNone ScrollDirective = iota
	// ScrollNow scrolls to the bottom immediately.
	ScrollNow
	// ScrollNowAndBackstop scrolls now and again after BackstopDelay,
	// catching content that reflows after the immediate scroll.
	ScrollNowAndBackstop
)

// Entry is one renderable transcript line with its classified role.
type Entry struct {
	Message types.Message
	Role    types.Role
}

// Config configures a Controller.
type Config struct {
	// AgentUID is the canonical agent identity for role classification.
	AgentUID string

	// FollowThreshold is the distance from the bottom, in renderer
	// units, within which the view counts as following. Default 100.
	FollowThreshold int

	// GrowthDelta is how much the in-progress text must grow since the
	// last scroll before another scroll is issued. Default 20.
	GrowthDelta int

	// BackstopDelay is how long the renderer should wait before the
	// backstop re-scroll. Default 100ms.
	BackstopDelay time.Duration
}

// Controller tracks panel visibility and the auto-scroll state machine.
// Safe for concurrent use.
type Controller struct {
	config Config

	mu            sync.Mutex
	state         State
	autoOpenArmed bool
	following     bool
	entries       []Entry
	finalCount    int
	scrolledLen   int
}

// New creates a controller with the panel closed, auto-open armed, and
// the view following.
func New(cfg Config) *Controller {
	if cfg.FollowThreshold <= 0 {
		cfg.FollowThreshold = DefaultFollowThreshold
	}
	if cfg.GrowthDelta <= 0 {
		cfg.GrowthDelta = DefaultGrowthDelta
	}
	if cfg.BackstopDelay <= 0 {
		cfg.BackstopDelay = DefaultBackstopDelay
	}
	cfg.AgentUID = types.CanonicalUID(cfg.AgentUID)

	return &Controller{
		config:        cfg,
		state:         StateClosed,
		autoOpenArmed: true,
		following:     true,
	}
}

// SetAgentUID updates the agent identity used for role classification.
// The identity is only known once the backend agent has started, so
// renderers refresh it as snapshots arrive.
func (c *Controller) SetAgentUID(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.AgentUID = types.CanonicalUID(uid)
}

// State returns the current visibility state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ToggleOpen flips the panel between closed and open. An expanded
// panel closes. Any manual toggle permanently disarms auto-open.
func (c *Controller) ToggleOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.autoOpenArmed = false
	if c.state == StateClosed {
		c.state = StateOpen
	} else {
		c.state = StateClosed
	}
}

// ToggleExpanded flips an open panel between open and expanded.
// Ignored while the panel is closed. Disarms auto-open.
func (c *Controller) ToggleExpanded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.autoOpenArmed = false
	switch c.state {
	case StateOpen:
		c.state = StateExpanded
	case StateExpanded:
		c.state = StateOpen
	}
}

// Following reports whether the view is attached to the bottom.
func (c *Controller) Following() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.following
}

// OnScroll records the view's distance from the bottom. Within the
// follow threshold the view re-attaches; beyond it, it detaches and
// auto-scrolling is suppressed until the user returns.
func (c *Controller) OnScroll(distanceFromBottom int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.following = distanceFromBottom <= c.config.FollowThreshold
}

// BackstopDelay returns the configured backstop re-scroll delay.
func (c *Controller) BackstopDelay() time.Duration {
	return c.config.BackstopDelay
}

// Apply ingests a transcript snapshot and returns the scroll directive
// the renderer should honor. A first non-empty snapshot opens a closed
// panel once, unless a manual toggle already disarmed auto-open.
func (c *Controller) Apply(snap transcript.Snapshot) ScrollDirective {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, streaming := c.visibleEntries(snap)
	c.entries = entries

	if c.autoOpenArmed && len(entries) > 0 {
		c.autoOpenArmed = false
		if c.state == StateClosed {
			c.state = StateOpen
		}
	}

	total := totalTextLen(entries)
	newlyFinal := len(snap.Messages) > c.finalCount
	c.finalCount = len(snap.Messages)

	if !c.following {
		// Detached: track length so re-attaching does not replay
		// accumulated growth as one giant delta.
		c.scrolledLen = total
		return ScrollNone
	}

	grown := total-c.scrolledLen > c.config.GrowthDelta
	if !newlyFinal && !grown {
		return ScrollNone
	}

	c.scrolledLen = total
	if streaming {
		return ScrollNowAndBackstop
	}
	return ScrollNow
}

// Visible returns the current renderable sequence: finalized messages
// in turn order, then the in-progress message iff its trimmed text is
// non-empty.
func (c *Controller) Visible() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Controller) visibleEntries(snap transcript.Snapshot) (entries []Entry, streaming bool) {
	entries = make([]Entry, 0, len(snap.Messages)+1)
	for _, m := range snap.Messages {
		entries = append(entries, c.entry(m))
	}
	if ip := snap.InProgress; ip != nil && strings.TrimSpace(ip.Text) != "" {
		entries = append(entries, c.entry(*ip))
		streaming = true
	}
	return entries, streaming
}

func (c *Controller) entry(m types.Message) Entry {
	return Entry{
		Message: m,
		Role:    types.RoleOf(m.UID, c.config.AgentUID),
	}
}

func totalTextLen(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += len(e.Message.Text)
	}
	return n
}
