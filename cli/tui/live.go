package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/parleyhq/parley/panel"
	"github.com/parleyhq/parley/session"
	"github.com/parleyhq/parley/transcript"
	"github.com/parleyhq/parley/types"
)

// liveFollowThreshold is the distance from the bottom, in rows, within
// which the transcript view counts as following.
const liveFollowThreshold = 3

type snapshotMsg transcript.Snapshot

type noticeMsg session.Notice

type sessionEndedMsg struct{}

type backstopMsg struct{}

// liveKeyMap defines key bindings for the live session view.
type liveKeyMap struct {
	Toggle key.Binding
	Expand key.Binding
	Mute   key.Binding
	Quit   key.Binding
}

var liveKeys = liveKeyMap{
	Toggle: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "transcript"),
	),
	Expand: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "expand"),
	),
	Mute: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mute"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// LiveModel is the Bubble Tea model for an attached session. It renders
// the conductor's snapshot stream through a panel controller: closed by
// default, auto-opens on the first content, follows the bottom until
// the user scrolls away.
type LiveModel struct {
	conductor *session.Conductor
	snaps     <-chan transcript.Snapshot
	notices   <-chan session.Notice

	panel *panel.Controller
	vp    viewport.Model
	md    *glamour.TermRenderer

	banner      string
	bannerError bool
	muted       bool
	ended       bool
	ready       bool
	width       int
	height      int
	quitting    bool
}

// NewLiveModel creates a live view over a running conductor.
func NewLiveModel(c *session.Conductor) LiveModel {
	md, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(76),
	)
	return LiveModel{
		conductor: c,
		snaps:     c.Snapshots(),
		notices:   c.Notices(),
		md:        md,
	}
}

// Init implements tea.Model.
func (m LiveModel) Init() tea.Cmd {
	return tea.Batch(waitSnapshot(m.snaps), waitNotice(m.notices))
}

func waitSnapshot(ch <-chan transcript.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return sessionEndedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func waitNotice(ch <-chan session.Notice) tea.Cmd {
	return func() tea.Msg {
		return noticeMsg(<-ch)
	}
}

// Update implements tea.Model.
func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.vp = viewport.New(msg.Width, m.panelHeight())
			m.ready = true
		}
		m.resizePanel()
		return m, nil

	case snapshotMsg:
		return m.onSnapshot(transcript.Snapshot(msg))

	case noticeMsg:
		m.banner = msg.Message
		m.bannerError = msg.Level == session.NoticeError
		return m, waitNotice(m.notices)

	case backstopMsg:
		if m.ctl().Following() {
			m.vp.GotoBottom()
		}
		return m, nil

	case sessionEndedMsg:
		m.ended = true
		m.quitting = true
		return m, tea.Quit

	case tea.KeyMsg:
		return m.onKey(msg)
	}

	return m.updateViewport(msg)
}

func (m LiveModel) onSnapshot(snap transcript.Snapshot) (tea.Model, tea.Cmd) {
	ctl := m.ctl()
	ctl.SetAgentUID(m.conductor.Meta().AgentUID)
	directive := ctl.Apply(snap)
	m.resizePanel()
	m.vp.SetContent(m.transcriptContent())

	cmds := []tea.Cmd{waitSnapshot(m.snaps)}
	switch directive {
	case panel.ScrollNow:
		m.vp.GotoBottom()
	case panel.ScrollNowAndBackstop:
		m.vp.GotoBottom()
		cmds = append(cmds, tea.Tick(ctl.BackstopDelay(), func(time.Time) tea.Msg {
			return backstopMsg{}
		}))
	}
	return m, tea.Batch(cmds...)
}

func (m LiveModel) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, liveKeys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, liveKeys.Toggle):
		m.ctl().ToggleOpen()
		m.resizePanel()
		return m, nil

	case key.Matches(msg, liveKeys.Expand):
		m.ctl().ToggleExpanded()
		m.resizePanel()
		return m, nil

	case key.Matches(msg, liveKeys.Mute):
		m.muted = !m.muted
		if err := m.conductor.SetMuted(m.muted); err != nil {
			m.banner = fmt.Sprintf("mute failed: %v", err)
			m.bannerError = true
			m.muted = !m.muted
		}
		return m, nil
	}

	return m.updateViewport(msg)
}

func (m LiveModel) updateViewport(msg tea.Msg) (tea.Model, tea.Cmd) {
	if !m.ready || m.ctl().State() == panel.StateClosed {
		return m, nil
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)

	distance := m.vp.TotalLineCount() - (m.vp.YOffset + m.vp.Height)
	if distance < 0 {
		distance = 0
	}
	m.ctl().OnScroll(distance)
	return m, cmd
}

// ctl lazily creates the panel controller. The agent identity may not
// be known yet when the first message forces creation; it is seeded
// here and refreshed on every snapshot.
func (m *LiveModel) ctl() *panel.Controller {
	if m.panel == nil {
		m.panel = panel.New(panel.Config{
			AgentUID:        m.conductor.Meta().AgentUID,
			FollowThreshold: liveFollowThreshold,
		})
	}
	return m.panel
}

func (m *LiveModel) resizePanel() {
	if !m.ready {
		return
	}
	m.vp.Width = m.width
	m.vp.Height = m.panelHeight()
}

// panelHeight returns the transcript viewport height for the current
// visibility state. Three rows are reserved for header, banner, and
// help.
func (m *LiveModel) panelHeight() int {
	usable := m.height - 3
	if usable < 3 {
		usable = 3
	}
	switch m.ctl().State() {
	case panel.StateExpanded:
		return usable
	default:
		return max(usable/3, 3)
	}
}

func (m LiveModel) transcriptContent() string {
	entries := m.ctl().Visible()

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderEntry(e))
	}
	return b.String()
}

func (m LiveModel) renderEntry(e panel.Entry) string {
	var prefix string
	text := e.Message.Text
	switch e.Role {
	case types.RoleAssistant:
		prefix = AgentPrefixStyle.Render("agent")
		if m.md != nil && e.Message.Status != types.StatusInProgress {
			if rendered, err := m.md.Render(text); err == nil {
				text = strings.TrimRight(rendered, "\n")
			}
		}
	default:
		prefix = UserPrefixStyle.Render("you")
	}

	switch e.Message.Status {
	case types.StatusInProgress:
		text = StreamingStyle.Render(text + " ▌")
	case types.StatusInterrupted:
		text += InterruptedStyle.Render(" ⏹")
	}

	return fmt.Sprintf("%s %s", prefix, text)
}

// View implements tea.Model.
func (m LiveModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")

	if m.banner != "" {
		style := WarningStyle
		if m.bannerError {
			style = BannerStyle
		}
		b.WriteString(style.Render(m.banner))
		b.WriteString("\n")
	}

	switch m.ctl().State() {
	case panel.StateClosed:
		b.WriteString(HelpStyle.Render("transcript hidden · press t to open"))
	default:
		if m.ready {
			b.WriteString(m.vp.View())
		} else {
			b.WriteString(m.transcriptContent())
		}
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("t transcript · e expand · m mute · q quit"))
	return b.String()
}

func (m LiveModel) headerView() string {
	meta := m.conductor.Meta()
	header := fmt.Sprintf("parley · %s · uid %s", meta.Channel, meta.UID)
	if m.muted {
		header += " · " + WarningStyle.Render("muted")
	}
	return TitleStyle.Render(header)
}

// RunLive runs the live session TUI until the session ends or the user
// quits. Returns whether the user quit before the session ended.
func RunLive(c *session.Conductor) (userQuit bool, err error) {
	model := NewLiveModel(c)
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	if m, ok := final.(LiveModel); ok {
		return !m.ended, nil
	}
	return false, nil
}
