package app

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
	appsync "github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/ui"
	"github.com/nhle/mailsync/internal/ui/command"
	"github.com/nhle/mailsync/internal/ui/compose"
	"github.com/nhle/mailsync/internal/ui/detail"
	"github.com/nhle/mailsync/internal/ui/folderview"
	helpview "github.com/nhle/mailsync/internal/ui/help"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
	ViewCompose
	ViewCommand
)

// Model is the root Bubble Tea model. It routes input to the active view
// and runs every mailbox operation through the sync controller.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	ctrl         *appsync.Controller
	keys         *keys.KeyMap
	folderView   folderview.Model
	detail       detail.Model
	helpView     helpview.Model
	composeView  compose.Model
	commandView  command.Model
	ready        bool
	statusMsg    string
}

// New creates the root application model around a controller.
func New(ctrl *appsync.Controller) Model {
	k := keys.DefaultKeyMap()
	table := ctrl.Classifier().Table()

	return Model{
		currentView: ViewList,
		ctrl:        ctrl,
		keys:        k,
		folderView:  folderview.New(k, table, 80, 24),
		detail:      detail.New(k, table, 80, 24),
		helpView:    helpview.New(k, table, 80, 24),
		composeView: compose.New(80, 24),
		commandView: command.New(80, 24),
	}
}

// Init loads the active folder and starts the spinner.
func (m Model) Init() tea.Cmd {
	folder := m.ctrl.ActiveFolder()
	return tea.Batch(
		m.folderView.Init(),
		switchFolder(m.ctrl, folder),
		func() tea.Msg { return pendingMsg{folder: folder} },
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.folderView.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.composeView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case pendingMsg:
		if msg.folder == m.ctrl.ActiveFolder() {
			cmd := m.folderView.SetView(m.ctrl.View(msg.folder))
			m.folderView.SetPending(true)
			return m, cmd
		}
		return m, nil

	case folderResultMsg:
		m.statusMsg = describeError(msg.op, msg.err)
		return m, m.folderView.SetView(m.ctrl.View(m.ctrl.ActiveFolder()))

	case markReadResultMsg:
		m.statusMsg = describeError("mark read", msg.err)
		return m, m.folderView.SetView(m.ctrl.View(m.ctrl.ActiveFolder()))

	case sendResultMsg:
		if msg.err != nil {
			m.statusMsg = describeError("send", msg.err)
		} else {
			m.statusMsg = "Message sent"
		}
		return m, m.folderView.SetView(m.ctrl.View(m.ctrl.ActiveFolder()))

	case folderview.SelectedMessageMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detail.SetLoading(true)
		return m, loadMessage(m.ctrl, msg.ID)

	case folderview.MarkReadMsg:
		return m.markRead(msg.ID)

	case detail.MarkReadMsg:
		return m.markRead(msg.ID)

	case folderview.PageMsg:
		return m, paginate(m.ctrl, m.ctrl.ActiveFolder(), msg.Index)

	case folderview.RetryMsg:
		m.statusMsg = "Refreshing..."
		return m, refresh(m.ctrl, m.ctrl.ActiveFolder())

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case compose.SubmitMsg:
		m.currentView = ViewList
		m.statusMsg = "Sending..."
		return m, send(m.ctrl, msg.Draft)

	case compose.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case command.FolderMsg:
		m.currentView = ViewList
		return m.switchTo(msg.Folder)

	case command.PageMsg:
		m.currentView = ViewList
		return m, paginate(m.ctrl, m.ctrl.ActiveFolder(), msg.Index)

	case command.RefreshMsg:
		m.currentView = ViewList
		m.statusMsg = "Refreshing..."
		return m, refresh(m.ctrl, m.ctrl.ActiveFolder())

	case command.ComposeMsg:
		m.currentView = ViewCompose
		return m, m.composeView.Start()

	case command.QuitMsg:
		return m, tea.Quit

	case command.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case tea.KeyMsg:
		if m.currentView == ViewCompose || m.currentView == ViewCommand {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}
		switch {
		case msg.String() == "ctrl+c":
			return m, tea.Quit

		case key.Matches(msg, m.keys.Quit) && m.currentView == ViewList:
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Back) && m.currentView == ViewHelp:
			m.currentView = m.previousView
			return m, nil

		case key.Matches(msg, m.keys.Compose) && m.currentView == ViewList:
			m.previousView = m.currentView
			m.currentView = ViewCompose
			return m, m.composeView.Start()

		case key.Matches(msg, m.keys.Command) && m.currentView == ViewList:
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case key.Matches(msg, m.keys.Inbox) && m.currentView == ViewList:
			return m.switchTo(model.FolderInbox)

		case key.Matches(msg, m.keys.Sent) && m.currentView == ViewList:
			return m.switchTo(model.FolderSent)

		case key.Matches(msg, m.keys.NextFolder) && m.currentView == ViewList:
			return m.switchTo(nextFolder(m.ctrl.ActiveFolder()))
		}
	}

	return m.updateActiveView(msg)
}

func (m Model) switchTo(folder model.Folder) (tea.Model, tea.Cmd) {
	if folder == m.ctrl.ActiveFolder() {
		return m, nil
	}
	m.statusMsg = ""
	cmd := m.folderView.SetView(m.ctrl.View(folder))
	m.folderView.SetPending(true)
	return m, tea.Batch(cmd, switchFolder(m.ctrl, folder))
}

// markRead applies the read state to the rendered list and detail view
// at once; the server acknowledgment follows in the background.
func (m Model) markRead(id string) (tea.Model, tea.Cmd) {
	m.ctrl.MarkReadLocal(id)
	m.detail.MarkedRead(id)
	cmd := m.folderView.SetView(m.ctrl.View(m.ctrl.ActiveFolder()))
	return m, tea.Batch(cmd, ackRead(m.ctrl, id))
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.folderView, cmd = m.folderView.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCompose:
		m.composeView, cmd = m.composeView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "mailsync"
	if u := m.ctrl.User(); u.Email != "" {
		title = "mailsync · " + u.Email
	}
	active := m.ctrl.ActiveFolder()
	header := m.layout.RenderHeader(title, m.syncStatus(active))
	tabs := m.layout.RenderTabs(model.KnownFolders, m.tabLabels(), active)
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, tabs, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.folderView.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCompose:
		return m.composeView.View()
	case ViewCommand:
		return lipgloss.JoinVertical(lipgloss.Left, m.folderView.View(), m.commandView.View())
	default:
		return ""
	}
}

// syncStatus summarizes the active folder's state for the header.
func (m Model) syncStatus(folder model.Folder) string {
	v := m.ctrl.View(folder)
	switch {
	case v.Refreshing:
		return "refreshing"
	case v.State == appsync.StateLoading:
		return "loading"
	case v.State == appsync.StateError:
		return "⚠ sync failed"
	case !v.LastSync.IsZero():
		return "synced " + v.LastSync.Local().Format("15:04")
	default:
		return "idle"
	}
}

func (m Model) tabLabels() map[model.Folder]string {
	labels := make(map[model.Folder]string, len(model.KnownFolders))
	v := m.ctrl.View(model.FolderInbox)
	unread := 0
	for _, msg := range v.Messages {
		if msg.IsUnread {
			unread++
		}
	}
	if unread > 0 {
		labels[model.FolderInbox] = fmt.Sprintf("Inbox (%d)", unread)
	}
	return labels
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.statusMsg != "" && m.currentView == ViewList {
		return m.statusMsg
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewDetail:
		return "esc back | m mark read | j/k scroll"
	case ViewCompose:
		return "enter next | esc cancel"
	case ViewCommand:
		return "enter run | esc cancel"
	default:
		return "q quit | ? help | tab folder | h/l page | r refresh | m read | c compose | : command"
	}
}

func nextFolder(f model.Folder) model.Folder {
	for i, k := range model.KnownFolders {
		if k == f {
			return model.KnownFolders[(i+1)%len(model.KnownFolders)]
		}
	}
	return model.FolderInbox
}

// describeError turns an operation failure into a status bar line.
func describeError(op string, err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, appsync.ErrRefreshInProgress):
		return "Refresh already in progress"
	case errors.Is(err, appsync.ErrNotAuthenticated):
		return "Not signed in. Run `mailsync login` and restart."
	case source.IsAuthError(err):
		return "Session expired. Run `mailsync login` and restart."
	default:
		return fmt.Sprintf("%s failed: %v", op, err)
	}
}
