package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
	appsync "github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/ui/folderview"
)

// inboxMailbox serves a fixed inbox and records mark-read calls.
type inboxMailbox struct {
	records []source.Record
	marked  []string
}

func (b *inboxMailbox) Type() source.SourceType { return source.SourceTypeHTTP }

func (b *inboxMailbox) CurrentUser(ctx context.Context) (model.User, error) {
	return model.User{Authenticated: true, Email: "me@example.com"}, nil
}

func (b *inboxMailbox) ListEmails(ctx context.Context, opts source.ListOptions) (*source.ListResult, error) {
	return &source.ListResult{Records: b.records, Page: opts.Page, TotalPages: 1}, nil
}

func (b *inboxMailbox) GetEmail(ctx context.Context, id string) (*source.Record, error) {
	return nil, errors.New("not found")
}

func (b *inboxMailbox) Send(ctx context.Context, draft model.Draft) error { return nil }

func (b *inboxMailbox) Refresh(ctx context.Context) (*source.RefreshResult, error) {
	return &source.RefreshResult{}, nil
}

func (b *inboxMailbox) MarkRead(ctx context.Context, id string) error {
	b.marked = append(b.marked, id)
	return nil
}

// runCmd executes cmd and any batched commands it expands to.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		out = append(out, runCmd(c)...)
	}
	return out
}

func TestNextFolder(t *testing.T) {
	assert.Equal(t, model.FolderSent, nextFolder(model.FolderInbox))
	assert.Equal(t, model.FolderInbox, nextFolder(model.FolderSent))
	assert.Equal(t, model.FolderInbox, nextFolder("archive"))
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "", describeError("refresh", nil))
	assert.Equal(t, "Refresh already in progress",
		describeError("refresh", fmt.Errorf("wrapped: %w", appsync.ErrRefreshInProgress)))
	assert.Contains(t, describeError("load inbox", appsync.ErrNotAuthenticated), "mailsync login")
	assert.Contains(t, describeError("load inbox", &source.AuthError{SourceType: source.SourceTypeHTTP}), "Session expired")
	assert.Equal(t, "page failed: timeout", describeError("page", errors.New("timeout")))
}

func TestMarkRead_ListShowsReadBeforeServerAnswers(t *testing.T) {
	mb := &inboxMailbox{records: []source.Record{{
		ID:        "r1",
		Sender:    "Alice <alice@example.com>",
		Recipient: "me@example.com",
		Subject:   "hello",
		SentAt:    "2024-03-01T10:00:00Z",
		Tags:      []string{model.TagUnread},
	}}}
	ctrl := appsync.New(mb)
	_, err := ctrl.FetchFolder(context.Background(), model.FolderInbox, 0, false)
	require.NoError(t, err)

	m := New(ctrl)
	m.folderView.SetView(ctrl.View(model.FolderInbox))
	require.Len(t, m.folderView.Current().Messages, 1)
	require.True(t, m.folderView.Current().Messages[0].IsUnread)

	updated, cmd := m.Update(folderview.MarkReadMsg{ID: "r1"})
	require.NotNil(t, cmd)

	row := updated.(Model).folderView.Current().Messages[0]
	assert.False(t, row.IsUnread)
	assert.NotNil(t, row.ReadAt)
	assert.Empty(t, mb.marked)

	var result *markReadResultMsg
	for _, msg := range runCmd(cmd) {
		if r, ok := msg.(markReadResultMsg); ok {
			result = &r
		}
	}
	require.NotNil(t, result)
	assert.NoError(t, result.err)
	assert.Equal(t, []string{"r1"}, mb.marked)
}
