package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailsync/internal/model"
	appsync "github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/ui/detail"
)

// opTimeout bounds a single controller call made from the UI.
const opTimeout = 30 * time.Second

// pendingMsg tells the folder view a fetch was dispatched for folder.
type pendingMsg struct {
	folder model.Folder
}

// folderResultMsg is sent when a fetch-type operation completes. The
// view re-reads the controller, so only the error travels.
type folderResultMsg struct {
	op  string
	err error
}

type markReadResultMsg struct {
	id  string
	err error
}

type sendResultMsg struct {
	err error
}

func switchFolder(ctrl *appsync.Controller, folder model.Folder) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_, err := ctrl.SwitchFolder(ctx, folder)
		return folderResultMsg{op: "load " + string(folder), err: err}
	}
}

func refresh(ctrl *appsync.Controller, folder model.Folder) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_, err := ctrl.Refresh(ctx, folder)
		return folderResultMsg{op: "refresh", err: err}
	}
}

func paginate(ctrl *appsync.Controller, folder model.Folder, index int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_, err := ctrl.Paginate(ctx, folder, index)
		return folderResultMsg{op: "page", err: err}
	}
}

func ackRead(ctrl *appsync.Controller, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return markReadResultMsg{id: id, err: ctrl.AckRead(ctx, id)}
	}
}

func send(ctrl *appsync.Controller, draft model.Draft) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return sendResultMsg{err: ctrl.Send(ctx, draft)}
	}
}

func loadMessage(ctrl *appsync.Controller, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		msg, err := ctrl.Message(ctx, id)
		return detail.LoadedMsg{ID: id, Message: msg, Err: err}
	}
}
