package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/theme"
)

// FolderMsg switches to a folder.
type FolderMsg struct {
	Folder model.Folder
}

// PageMsg jumps to a 0-based page of the active folder.
type PageMsg struct {
	Index int
}

// RefreshMsg resyncs the active folder.
type RefreshMsg struct{}

// ComposeMsg opens the compose form.
type ComposeMsg struct{}

// QuitMsg exits the application.
type QuitMsg struct{}

// CancelMsg closes the palette without running anything.
type CancelMsg struct{}

// Model is the ":" command prompt.
type Model struct {
	input  textinput.Model
	err    error
	width  int
	height int
}

// New creates a new command prompt model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "inbox | sent | page N | refresh | compose | quit"
	ti.Prompt = ": "
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command prompt.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			line := m.input.Value()
			out, err := Parse(line)
			if err != nil {
				m.err = err
				return m, nil
			}
			m.input.Reset()
			m.err = nil
			return m, func() tea.Msg { return out }
		case "esc":
			m.input.Reset()
			m.err = nil
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// Parse turns a command line into the message the app acts on. An empty
// line cancels.
func Parse(line string) (tea.Msg, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return CancelMsg{}, nil
	}

	switch fields[0] {
	case "inbox", "i":
		return FolderMsg{Folder: model.FolderInbox}, nil
	case "sent", "s":
		return FolderMsg{Folder: model.FolderSent}, nil
	case "page", "p":
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage: page N")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("page must be a positive number")
		}
		return PageMsg{Index: n - 1}, nil
	case "refresh", "r":
		return RefreshMsg{}, nil
	case "compose", "c":
		return ComposeMsg{}, nil
	case "quit", "q":
		return QuitMsg{}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}
}

// View renders the command prompt.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Command"), m.input.View()}
	if m.err != nil {
		parts = append(parts, "", theme.ErrorBannerStyle.Render(m.err.Error()))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the command prompt dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
