package help

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/pipeline"
	"github.com/nhle/mailsync/internal/theme"
)

// Model is the help overlay: keyboard shortcuts plus a legend of the
// configured message categories.
type Model struct {
	keys       *keys.KeyMap
	help       help.Model
	categories []pipeline.Category
	width      int
	height     int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, table pipeline.CategoryTable, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:       keys,
		help:       h,
		categories: table.Entries(),
		width:      width,
		height:     height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	sections := []string{
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
	}

	if len(m.categories) > 0 {
		sections = append(sections, "", titleStyle.Render("Categories"))
		for _, c := range m.categories {
			sections = append(sections, lipgloss.JoinHorizontal(
				lipgloss.Top,
				theme.CategoryStyle(c.Color).Render(c.Name),
				theme.HelpStyle.Render(" "+c.Tag),
			))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
