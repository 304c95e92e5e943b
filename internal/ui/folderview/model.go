package folderview

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/pipeline"
	appsync "github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/theme"
)

// SelectedMessageMsg is sent when the user opens a message.
type SelectedMessageMsg struct {
	ID string
}

// MarkReadMsg asks the parent to mark a message read.
type MarkReadMsg struct {
	ID string
}

// PageMsg asks the parent to load another page of the folder.
type PageMsg struct {
	Index int
}

// RetryMsg asks the parent to refresh the folder, either on demand or
// after a failed fetch.
type RetryMsg struct{}

// Model renders one folder: the message list, a first-load spinner or
// the error banner with a retry hint.
type Model struct {
	list    list.Model
	spinner spinner.Model
	keys    *keys.KeyMap
	view    appsync.FolderView
	pending bool
	width   int
	height  int
}

// New creates a folder view.
func New(k *keys.KeyMap, table pipeline.CategoryTable, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{table: table}, width, height-2)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		list:    l,
		spinner: s,
		keys:    k,
		width:   width,
		height:  height,
	}
}

// Init starts the loading spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// SetView replaces the rendered snapshot. The cursor is kept when the
// folder did not change.
func (m *Model) SetView(v appsync.FolderView) tea.Cmd {
	folderChanged := v.Folder != m.view.Folder
	m.view = v
	m.pending = false

	items := make([]list.Item, len(v.Messages))
	for i, msg := range v.Messages {
		items[i] = MessageItem{Message: msg, Folder: v.Folder}
	}
	cmd := m.list.SetItems(items)
	if folderChanged {
		m.list.Select(0)
	}
	return cmd
}

// Current returns the snapshot being rendered.
func (m Model) Current() appsync.FolderView {
	return m.view
}

// SetPending marks a fetch as dispatched but not yet answered.
func (m *Model) SetPending(pending bool) {
	m.pending = pending
}

// SelectedID returns the id of the highlighted message.
func (m Model) SelectedID() (string, bool) {
	item, ok := m.list.SelectedItem().(MessageItem)
	if !ok {
		return "", false
	}
	return item.Message.ID, true
}

// Update handles messages for the folder view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		if id, ok := m.SelectedID(); ok {
			return m, func() tea.Msg { return SelectedMessageMsg{ID: id} }
		}
		return m, nil

	case key.Matches(msg, m.keys.MarkRead):
		if id, ok := m.SelectedID(); ok {
			return m, func() tea.Msg { return MarkReadMsg{ID: id} }
		}
		return m, nil

	case key.Matches(msg, m.keys.NextPage):
		idx := m.view.Index + 1
		return m, func() tea.Msg { return PageMsg{Index: idx} }

	case key.Matches(msg, m.keys.PrevPage):
		idx := m.view.Index - 1
		return m, func() tea.Msg { return PageMsg{Index: idx} }

	case key.Matches(msg, m.keys.Refresh):
		return m, func() tea.Msg { return RetryMsg{} }
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the folder.
func (m Model) View() string {
	center := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	hasData := len(m.view.Messages) > 0
	loading := m.view.State == appsync.StateLoading ||
		(m.pending && m.view.State == appsync.StateEmpty)

	switch {
	case m.view.State == appsync.StateError && !hasData:
		return center.Render(m.errorBanner())
	case loading && !hasData:
		return center.Render(m.spinner.View() + " Loading " + string(m.view.Folder) + "...")
	case !hasData:
		return center.Render("No messages.\n\nPress r to refresh.")
	}

	body := m.list.View()
	if m.view.State == appsync.StateError {
		return lipgloss.JoinVertical(lipgloss.Left, m.errorBanner(), body)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.pageFooter())
}

func (m Model) errorBanner() string {
	text := "Could not load messages."
	if m.view.Err != nil {
		text = fmt.Sprintf("Could not load messages: %v", m.view.Err)
	}
	if appsync.IsRetryable(m.view.Err) {
		text += "\nPress r to retry."
	}
	return theme.ErrorBannerStyle.MaxWidth(m.width).Render(text)
}

func (m Model) pageFooter() string {
	if m.view.TotalPages <= 1 {
		return ""
	}
	return theme.HelpStyle.Render(fmt.Sprintf(
		"  page %d/%d", m.view.Index+1, m.view.TotalPages,
	))
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
