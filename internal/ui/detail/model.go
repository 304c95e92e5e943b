package detail

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/pipeline"
	"github.com/nhle/mailsync/internal/theme"
)

// BackMsg signals the parent to navigate back to the folder view.
type BackMsg struct{}

// LoadedMsg carries a fetched message or the error that prevented it.
type LoadedMsg struct {
	ID      string
	Message model.Message
	Err     error
}

// MarkReadMsg asks the parent to mark the displayed message read.
type MarkReadMsg struct {
	ID string
}

// Model is the message detail view.
type Model struct {
	msg      *model.Message
	err      error
	viewport viewport.Model
	keys     *keys.KeyMap
	table    pipeline.CategoryTable
	width    int
	height   int
	loading  bool
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, table pipeline.CategoryTable, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		table:    table,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.msg = nil
			m.err = msg.Err
			return m, nil
		}
		m.SetMessage(msg.Message)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.MarkRead):
			if m.msg != nil && m.msg.IsUnread {
				id := m.msg.ID
				return m, func() tea.Msg {
					return MarkReadMsg{ID: id}
				}
			}
			return m, nil
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	center := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.loading:
		return center.Render("Loading message...")
	case m.err != nil:
		return center.Render(theme.ErrorBannerStyle.Render(
			fmt.Sprintf("Could not load message: %v\nPress esc to go back.", m.err),
		))
	case m.msg == nil:
		return center.Render("No message selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.msg == nil {
		return ""
	}

	msg := m.msg
	var sections []string

	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(subject))

	var badges []string
	if msg.IsUnread {
		badges = append(badges, theme.UnreadStyle.Render("UNREAD"))
	}
	if msg.IsImportant {
		badges = append(badges, theme.ImportantStyle.Render("IMPORTANT"))
	}
	if msg.Category != "" {
		badges = append(badges, theme.CategoryStyle(m.table.Color(msg.Category)).Render(msg.Category))
	}
	if len(badges) > 0 {
		sections = append(sections, strings.Join(badges, "  "))
	}
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, fmt.Sprintf(
			"%s %s",
			metaStyle.Render(fmt.Sprintf("%-6s", label+":")),
			valStyle.Render(value),
		))
	}

	from := msg.SenderAddress
	if msg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", msg.SenderName, msg.SenderAddress)
	}
	row("From", from)
	row("To", msg.RecipientAddress)
	row("Date", msg.SentAt.Local().Format("2006-01-02 15:04"))
	if msg.ReadAt != nil {
		row("Read", msg.ReadAt.Local().Format("2006-01-02 15:04"))
	}
	row("Status", msg.Status)

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(0, min(m.width-4, 80))))
	sections = append(sections, "", separator, "")

	body := plainText(msg.Body)
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No content")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(20, m.width-2)).Render(body))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetMessage updates the message being displayed and re-renders.
func (m *Model) SetMessage(msg model.Message) {
	m.msg = &msg
	m.err = nil
	m.loading = false
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// MarkedRead reflects a local mark-read on the displayed message.
func (m *Model) MarkedRead(id string) {
	if m.msg == nil || m.msg.ID != id {
		return
	}
	m.msg.IsUnread = false
	m.viewport.SetContent(m.renderContent())
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
	if loading {
		m.err = nil
	}
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	m.viewport.SetContent(m.renderContent())
}

var blankLines = regexp.MustCompile(`\n[ \t]*\n(\s*\n)+`)

// plainText renders HTML bodies as text. Bodies without markup are
// returned trimmed.
func plainText(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	if !strings.Contains(body, "<") {
		return strings.TrimSpace(body)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return strings.TrimSpace(body)
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, tr, li, h1, h2, h3, h4, blockquote").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	out := blankLines.ReplaceAllString(doc.Text(), "\n\n")
	return strings.TrimSpace(out)
}
