package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/parleyhq/parley/archive"
)

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	vp       viewport.Model
	ready    bool
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.vp = viewport.New(msg.Width, max(msg.Height-4, 4))
			m.vp.SetContent(m.content())
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = max(msg.Height-4, 4)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	help := HelpStyle.Render("↑/↓ scroll · q quit")
	if !m.ready {
		return m.content() + "\n" + help
	}
	return m.vp.View() + "\n" + help
}

func (m InspectModel) content() string {
	switch m.viewType {
	case "inspect_session":
		return m.renderInspectSession()
	default:
		return fmt.Sprintf("Unknown view type: %s", m.viewType)
	}
}

func (m InspectModel) renderInspectSession() string {
	data, ok := m.data.(*archive.SessionDetail)
	if !ok {
		return "Invalid data type for inspect_session"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Details"))
	b.WriteString("\n\n")

	s := data.Session
	rows := [][]string{
		{"Session ID", s.SessionID},
		{"Channel", s.Channel},
		{"Day", s.Day},
		{"UID", s.UID},
		{"Agent UID", s.AgentUID},
		{"Outcome", s.Outcome},
		{"Messages", fmt.Sprintf("%d", s.MessageCount)},
		{"Interrupted", fmt.Sprintf("%d", s.InterruptedCount)},
		{"Duration", fmt.Sprintf("%dms", s.DurationMS)},
		{"Started At", s.StartedAt},
		{"Ended At", s.EndedAt},
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := row[1]
		if row[0] == "Outcome" {
			value = StateStyle(s.Outcome).Render(value)
		} else {
			value = ValueStyle.Render(value)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	b.WriteString("\n")
	b.WriteString(TitleStyle.Render("Transcript"))
	b.WriteString("\n")

	for _, msg := range data.Messages {
		prefix := UserPrefixStyle.Render(fmt.Sprintf("[%s]", msg.Role))
		if msg.Role == "assistant" {
			prefix = AgentPrefixStyle.Render(fmt.Sprintf("[%s]", msg.Role))
		}
		line := fmt.Sprintf("%s %s", prefix, msg.Text)
		if msg.Status == "interrupted" {
			line += InterruptedStyle.Render(" ⏹")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return BoxStyle.Render(b.String())
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
