package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

const me = "me@example.com"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeMailbox is a scriptable source.Mailbox. Unset hooks fall back to
// serving records with the requested page echoed back.
type fakeMailbox struct {
	mu gosync.Mutex

	user    model.User
	userErr error

	records    []source.Record
	totalPages int

	listFn    func(ctx context.Context, opts source.ListOptions) (*source.ListResult, error)
	refreshFn func(ctx context.Context) (*source.RefreshResult, error)
	getFn     func(ctx context.Context, id string) (*source.Record, error)

	sendErr error
	markErr error

	listCalls []source.ListOptions
	getCalls  int
	sent      []model.Draft
	marked    []string
}

func newFakeMailbox(records ...source.Record) *fakeMailbox {
	return &fakeMailbox{
		user:       model.User{Authenticated: true, Email: me},
		records:    records,
		totalPages: 1,
	}
}

func (f *fakeMailbox) Type() source.SourceType { return source.SourceTypeHTTP }

func (f *fakeMailbox) CurrentUser(ctx context.Context) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, f.userErr
}

func (f *fakeMailbox) ListEmails(ctx context.Context, opts source.ListOptions) (*source.ListResult, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, opts)
	fn := f.listFn
	records := append([]source.Record(nil), f.records...)
	total := f.totalPages
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, opts)
	}
	return &source.ListResult{Records: records, Page: opts.Page, TotalPages: total}, nil
}

func (f *fakeMailbox) GetEmail(ctx context.Context, id string) (*source.Record, error) {
	f.mu.Lock()
	f.getCalls++
	fn := f.getFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	for _, r := range f.records {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeMailbox) Send(ctx context.Context, draft model.Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, draft)
	return nil
}

func (f *fakeMailbox) Refresh(ctx context.Context) (*source.RefreshResult, error) {
	if f.refreshFn != nil {
		return f.refreshFn(ctx)
	}
	return &source.RefreshResult{}, nil
}

func (f *fakeMailbox) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return f.markErr
}

func (f *fakeMailbox) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listCalls)
}

func (f *fakeMailbox) setList(fn func(ctx context.Context, opts source.ListOptions) (*source.ListResult, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFn = fn
}

func received(id, sentAt string, tags ...string) source.Record {
	return source.Record{
		ID:        id,
		Sender:    "Alice <alice@example.com>",
		Recipient: me,
		Subject:   "to me " + id,
		SentAt:    sentAt,
		Tags:      tags,
	}
}

func sentRecord(id, sentAt string) source.Record {
	return source.Record{
		ID:        id,
		Sender:    me,
		Recipient: "bob@example.com",
		Subject:   "from me " + id,
		SentAt:    sentAt,
	}
}

func newTestController(mb *fakeMailbox) *Controller {
	return New(mb, WithClock(func() time.Time { return testNow }))
}

func messageIDs(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestFetchFolder_PartitionsAndCachesBothFolders(t *testing.T) {
	mb := newFakeMailbox(
		received("r1", "2024-03-01T10:00:00Z", "UNREAD"),
		sentRecord("s1", "2024-03-01T11:00:00Z"),
		received("r2", "2024-03-02T10:00:00Z"),
		source.Record{ID: "x", Sender: "carol@example.com", Recipient: "dave@example.com"},
	)
	mb.totalPages = 2
	c := newTestController(mb)

	page, err := c.FetchFolder(context.Background(), model.FolderInbox, 0, false)
	require.NoError(t, err)

	assert.Equal(t, model.FolderInbox, page.Folder)
	assert.Equal(t, []string{"r2", "r1"}, messageIDs(page.Messages))
	assert.Equal(t, 0, page.Index)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNext())
	assert.False(t, page.HasPrev())

	r1 := page.Messages[1]
	assert.Equal(t, "alice@example.com", r1.SenderAddress)
	assert.Equal(t, "Alice", r1.SenderName)
	assert.True(t, r1.IsUnread)
	assert.Nil(t, r1.ReadAt)

	sent := c.View(model.FolderSent)
	assert.Equal(t, StateReady, sent.State)
	assert.Equal(t, []string{"s1"}, messageIDs(sent.Messages))

	inbox := c.View(model.FolderInbox)
	assert.Equal(t, StateReady, inbox.State)
	assert.Equal(t, testNow, inbox.LastSync)
	assert.Equal(t, me, c.User().Email)
}

func TestFetchFolder_DeduplicatesByExternalID(t *testing.T) {
	older := received("a", "2024-03-01T10:00:00Z")
	older.ExternalID = "abc"
	newer := received("b", "2024-03-01T12:00:00Z")
	newer.ExternalID = "abc"
	c := newTestController(newFakeMailbox(older, newer))

	page, err := c.FetchFolder(context.Background(), model.FolderInbox, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, messageIDs(page.Messages))
}

func TestFetchFolder_InvalidDatesFallBackToNow(t *testing.T) {
	c := newTestController(newFakeMailbox(received("r1", "not-a-date")))

	page, err := c.FetchFolder(context.Background(), model.FolderInbox, 0, false)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, testNow, page.Messages[0].SentAt)
	assert.Equal(t, testNow.UnixMilli(), page.Messages[0].SentTimestamp)
}

func TestFetchFolder_MissingIDGetsOne(t *testing.T) {
	c := newTestController(newFakeMailbox(received("", "2024-03-01T10:00:00Z")))

	page, err := c.FetchFolder(context.Background(), model.FolderInbox, 0, false)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.NotEmpty(t, page.Messages[0].ID)
}

func TestFetchFolder_NotAuthenticated(t *testing.T) {
	mb := newFakeMailbox(received("r1", ""))
	mb.user = model.User{Authenticated: false}
	c := newTestController(mb)

	page, err := c.FetchFolder(context.Background(), model.FolderInbox, 0, false)

	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, page.Messages)
	assert.NotNil(t, page.Messages)
	assert.Equal(t, 0, mb.listCount())
	assert.False(t, IsRetryable(err))
}

func TestFetchFolder_PageMismatchWritesNothing(t *testing.T) {
	mb := newFakeMailbox(received("r1", ""))
	mb.listFn = func(ctx context.Context, opts source.ListOptions) (*source.ListResult, error) {
		return &source.ListResult{Records: mb.records, Page: opts.Page + 1, TotalPages: 5}, nil
	}
	c := newTestController(mb)

	_, err := c.FetchFolder(context.Background(), model.FolderInbox, 0, false)

	assert.ErrorIs(t, err, ErrPageMismatch)
	v := c.View(model.FolderInbox)
	assert.Equal(t, StateError, v.State)
	assert.Empty(t, v.Messages)
	_, cached := c.cache.Read(model.FolderSent)
	assert.False(t, cached)
}

func TestFetchFolder_FailureKeepsCache(t *testing.T) {
	mb := newFakeMailbox(received("r1", "2024-03-01T10:00:00Z"))
	c := newTestController(mb)
	ctx := context.Background()

	_, err := c.FetchFolder(ctx, model.FolderInbox, 0, false)
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mb.setList(func(ctx context.Context, opts source.ListOptions) (*source.ListResult, error) {
		return nil, boom
	})

	page, err := c.FetchFolder(ctx, model.FolderInbox, 0, false)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"r1"}, messageIDs(page.Messages))

	v := c.View(model.FolderInbox)
	assert.Equal(t, StateError, v.State)
	assert.ErrorIs(t, v.Err, boom)
	assert.Equal(t, []string{"r1"}, messageIDs(v.Messages))
	assert.True(t, IsRetryable(v.Err))

	// A later success clears the error.
	mb.setList(nil)
	_, err = c.FetchFolder(ctx, model.FolderInbox, 0, false)
	require.NoError(t, err)
	assert.Equal(t, StateReady, c.View(model.FolderInbox).State)
}

func TestFetchFolder_UnknownFolderStillCachesKnownFolders(t *testing.T) {
	c := newTestController(newFakeMailbox(received("r1", ""), sentRecord("s1", "")))

	page, err := c.FetchFolder(context.Background(), "archive", 0, false)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)

	assert.Len(t, c.View(model.FolderInbox).Messages, 1)
	assert.Len(t, c.View(model.FolderSent).Messages, 1)
}

// blockFirstList makes the first ListEmails call wait until release is
// closed and answer with first; later calls answer with later.
func blockFirstList(mb *fakeMailbox, entered chan<- struct{}, release <-chan struct{}, first, later func() (*source.ListResult, error)) {
	var once gosync.Once
	mb.setList(func(ctx context.Context, opts source.ListOptions) (*source.ListResult, error) {
		isFirst := false
		once.Do(func() { isFirst = true })
		if isFirst {
			close(entered)
			<-release
			return first()
		}
		return later()
	})
}

func TestFetchFolder_StaleResponseIsDiscarded(t *testing.T) {
	mb := newFakeMailbox()
	c := newTestController(mb)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	blockFirstList(mb, entered, release,
		func() (*source.ListResult, error) {
			return &source.ListResult{Records: []source.Record{received("old", "")}, TotalPages: 1}, nil
		},
		func() (*source.ListResult, error) {
			return &source.ListResult{Records: []source.Record{received("new", "")}, TotalPages: 1}, nil
		},
	)

	type result struct {
		page Page
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := c.FetchFolder(ctx, model.FolderInbox, 0, false)
		done <- result{p, err}
	}()
	<-entered

	page, err := c.FetchFolder(ctx, model.FolderInbox, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, messageIDs(page.Messages))

	close(release)
	stale := <-done
	require.NoError(t, stale.err)
	assert.Equal(t, []string{"new"}, messageIDs(stale.page.Messages))
	assert.Equal(t, []string{"new"}, messageIDs(c.View(model.FolderInbox).Messages))
}

func TestFetchFolder_StaleErrorIsIgnored(t *testing.T) {
	mb := newFakeMailbox()
	c := newTestController(mb)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	blockFirstList(mb, entered, release,
		func() (*source.ListResult, error) { return nil, errors.New("late failure") },
		func() (*source.ListResult, error) {
			return &source.ListResult{Records: []source.Record{received("new", "")}, TotalPages: 1}, nil
		},
	)

	done := make(chan error, 1)
	go func() {
		_, err := c.FetchFolder(ctx, model.FolderInbox, 0, false)
		done <- err
	}()
	<-entered

	_, err := c.FetchFolder(ctx, model.FolderInbox, 0, false)
	require.NoError(t, err)

	close(release)
	assert.Error(t, <-done)

	v := c.View(model.FolderInbox)
	assert.Equal(t, StateReady, v.State)
	assert.NoError(t, v.Err)
}

func TestView_LoadingWhileFirstFetchInFlight(t *testing.T) {
	mb := newFakeMailbox()
	c := newTestController(mb)

	assert.Equal(t, StateEmpty, c.View(model.FolderInbox).State)

	entered := make(chan struct{})
	release := make(chan struct{})
	ok := func() (*source.ListResult, error) { return &source.ListResult{TotalPages: 1}, nil }
	blockFirstList(mb, entered, release, ok, ok)

	done := make(chan struct{})
	go func() {
		_, _ = c.FetchFolder(context.Background(), model.FolderInbox, 0, false)
		close(done)
	}()
	<-entered

	assert.Equal(t, StateLoading, c.View(model.FolderInbox).State)
	close(release)
	<-done
	assert.Equal(t, StateReady, c.View(model.FolderInbox).State)
}

func TestSwitchFolder_ServedFromCacheAfterLoad(t *testing.T) {
	mb := newFakeMailbox(received("r1", ""), sentRecord("s1", ""))
	c := newTestController(mb)
	ctx := context.Background()

	_, err := c.SwitchFolder(ctx, model.FolderInbox)
	require.NoError(t, err)
	require.Equal(t, 1, mb.listCount())

	page, err := c.SwitchFolder(ctx, model.FolderSent)
	require.NoError(t, err)

	assert.Equal(t, 1, mb.listCount())
	assert.Equal(t, model.FolderSent, c.ActiveFolder())
	assert.Equal(t, []string{"s1"}, messageIDs(page.Messages))
}

func TestRefresh_ForcesRefetchOfFirstPage(t *testing.T) {
	mb := newFakeMailbox(received("r1", ""))
	mb.totalPages = 3
	c := newTestController(mb)
	ctx := context.Background()

	_, err := c.FetchFolder(ctx, model.FolderInbox, 2, false)
	require.NoError(t, err)

	page, err := c.Refresh(ctx, model.FolderInbox)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Index)

	last := mb.listCalls[len(mb.listCalls)-1]
	assert.Equal(t, 0, last.Page)
	assert.True(t, last.ForceRefresh)
}

func TestRefresh_ResyncFailureStillFetches(t *testing.T) {
	mb := newFakeMailbox(received("r1", ""))
	mb.refreshFn = func(ctx context.Context) (*source.RefreshResult, error) {
		return nil, errors.New("provider down")
	}
	c := newTestController(mb)

	page, err := c.Refresh(context.Background(), model.FolderInbox)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, messageIDs(page.Messages))
	assert.Equal(t, 1, mb.listCount())
}

func TestRefresh_RejectsReentry(t *testing.T) {
	mb := newFakeMailbox(received("r1", ""))
	entered := make(chan struct{})
	release := make(chan struct{})
	mb.refreshFn = func(ctx context.Context) (*source.RefreshResult, error) {
		close(entered)
		<-release
		return &source.RefreshResult{}, nil
	}
	c := newTestController(mb)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(ctx, model.FolderInbox)
		done <- err
	}()
	<-entered

	assert.True(t, c.View(model.FolderInbox).Refreshing)
	_, err := c.Refresh(ctx, model.FolderInbox)
	assert.ErrorIs(t, err, ErrRefreshInProgress)
	assert.False(t, IsRetryable(err))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.View(model.FolderInbox).Refreshing)
	assert.Equal(t, 1, mb.listCount())
}

func TestRefresh_FetchFailureKeepsCache(t *testing.T) {
	mb := newFakeMailbox(received("r1", ""))
	c := newTestController(mb)
	ctx := context.Background()

	_, err := c.FetchFolder(ctx, model.FolderInbox, 0, false)
	require.NoError(t, err)

	mb.setList(func(ctx context.Context, opts source.ListOptions) (*source.ListResult, error) {
		return nil, errors.New("timeout")
	})
	page, err := c.Refresh(ctx, model.FolderInbox)
	assert.Error(t, err)
	assert.Equal(t, []string{"r1"}, messageIDs(page.Messages))
	assert.Equal(t, StateError, c.View(model.FolderInbox).State)
}

func TestRefresh_DropsCachedDetails(t *testing.T) {
	mb := newFakeMailbox(received("r1", "2024-03-01T10:00:00Z", "UNREAD"))
	c := newTestController(mb)
	ctx := context.Background()

	_, err := c.Message(ctx, "r1")
	require.NoError(t, err)

	mb.setList(func(ctx context.Context, opts source.ListOptions) (*source.ListResult, error) {
		return nil, errors.New("offline")
	})
	_, err = c.Refresh(ctx, model.FolderInbox)
	require.Error(t, err)
	_, err = c.Message(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, mb.getCalls, "failed refresh keeps details")

	mb.setList(nil)
	_, err = c.Refresh(ctx, model.FolderInbox)
	require.NoError(t, err)
	_, err = c.Message(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, mb.getCalls)
}

func TestPaginate(t *testing.T) {
	mb := newFakeMailbox(received("r1", ""))
	mb.totalPages = 3
	c := newTestController(mb)
	ctx := context.Background()

	// Without a cached entry only page 0 exists.
	page, err := c.Paginate(ctx, model.FolderInbox, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Equal(t, 0, mb.listCount())

	_, err = c.Paginate(ctx, model.FolderInbox, 0)
	require.NoError(t, err)
	require.Equal(t, 1, mb.listCount())

	page, err = c.Paginate(ctx, model.FolderInbox, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Index)
	assert.Equal(t, 2, mb.listCalls[1].Page)

	for _, idx := range []int{-1, 3, 10} {
		page, err = c.Paginate(ctx, model.FolderInbox, idx)
		require.NoError(t, err)
		assert.Equal(t, 2, page.Index, "index %d", idx)
	}
	assert.Equal(t, 2, mb.listCount())
}

func TestMarkRead_OptimisticWithoutRollback(t *testing.T) {
	mb := newFakeMailbox(received("r1", "2024-03-01T10:00:00Z", "UNREAD", "CATEGORY_SOCIAL"))
	mb.markErr = errors.New("server said no")
	c := newTestController(mb)
	ctx := context.Background()

	_, err := c.FetchFolder(ctx, model.FolderInbox, 0, false)
	require.NoError(t, err)
	_, err = c.Message(ctx, "r1")
	require.NoError(t, err)

	err = c.MarkRead(ctx, "r1")
	assert.Error(t, err)
	assert.Equal(t, []string{"r1"}, mb.marked)

	v := c.View(model.FolderInbox)
	require.Len(t, v.Messages, 1)
	m := v.Messages[0]
	assert.False(t, m.IsUnread)
	require.NotNil(t, m.ReadAt)
	assert.Equal(t, testNow, *m.ReadAt)
	assert.Equal(t, []string{"CATEGORY_SOCIAL"}, m.Tags)

	detail, err := c.Message(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, detail.IsUnread)
	assert.Equal(t, 1, mb.getCalls)
}

func TestMarkRead_UnknownMessageStillCallsServer(t *testing.T) {
	mb := newFakeMailbox()
	c := newTestController(mb)

	require.NoError(t, c.MarkRead(context.Background(), "missing"))
	assert.Equal(t, []string{"missing"}, mb.marked)
}

func TestMarkReadLocal_DoesNotCallServer(t *testing.T) {
	mb := newFakeMailbox(received("r1", "2024-03-01T10:00:00Z", "UNREAD"))
	c := newTestController(mb)
	ctx := context.Background()

	_, err := c.FetchFolder(ctx, model.FolderInbox, 0, false)
	require.NoError(t, err)

	assert.True(t, c.MarkReadLocal("r1"))
	assert.False(t, c.MarkReadLocal("missing"))
	assert.Empty(t, mb.marked)

	v := c.View(model.FolderInbox)
	require.Len(t, v.Messages, 1)
	assert.False(t, v.Messages[0].IsUnread)
	require.NotNil(t, v.Messages[0].ReadAt)

	require.NoError(t, c.AckRead(ctx, "r1"))
	assert.Equal(t, []string{"r1"}, mb.marked)
	assert.Equal(t, testNow, *c.View(model.FolderInbox).Messages[0].ReadAt)
}

func TestSend_EmptyRecipient(t *testing.T) {
	mb := newFakeMailbox()
	c := newTestController(mb)

	err := c.Send(context.Background(), model.Draft{RecipientAddress: "  ", Subject: "hi"})

	assert.ErrorIs(t, err, ErrEmptyRecipient)
	assert.Empty(t, mb.sent)
	assert.Equal(t, 0, mb.listCount())
}

func TestSend_ReloadsSentFolder(t *testing.T) {
	mb := newFakeMailbox(sentRecord("s1", ""))
	c := newTestController(mb)

	err := c.Send(context.Background(), model.Draft{RecipientAddress: "bob@example.com", Subject: "hi"})
	require.NoError(t, err)

	require.Len(t, mb.sent, 1)
	require.Equal(t, 1, mb.listCount())
	assert.True(t, mb.listCalls[0].ForceRefresh)
	assert.Equal(t, []string{"s1"}, messageIDs(c.View(model.FolderSent).Messages))
}

func TestSend_ReloadFailureIsNotAnError(t *testing.T) {
	mb := newFakeMailbox()
	mb.listFn = func(ctx context.Context, opts source.ListOptions) (*source.ListResult, error) {
		return nil, errors.New("reload failed")
	}
	c := newTestController(mb)

	err := c.Send(context.Background(), model.Draft{RecipientAddress: "bob@example.com"})
	require.NoError(t, err)
	assert.Len(t, mb.sent, 1)
}

func TestSend_DeliveryFailure(t *testing.T) {
	mb := newFakeMailbox()
	mb.sendErr = errors.New("smtp down")
	c := newTestController(mb)

	err := c.Send(context.Background(), model.Draft{RecipientAddress: "bob@example.com"})
	assert.ErrorIs(t, err, mb.sendErr)
	assert.Equal(t, 0, mb.listCount())
}

func TestMessage_CachesDetail(t *testing.T) {
	mb := newFakeMailbox(received("r1", "2024-03-01T10:00:00Z"))
	c := newTestController(mb)
	ctx := context.Background()

	first, err := c.Message(ctx, "r1")
	require.NoError(t, err)
	second, err := c.Message(ctx, "r1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mb.getCalls)
	assert.Equal(t, "alice@example.com", first.SenderAddress)
}

func TestMessage_ErrorIsNotCached(t *testing.T) {
	mb := newFakeMailbox()
	c := newTestController(mb)
	ctx := context.Background()

	_, err := c.Message(ctx, "nope")
	assert.Error(t, err)
	_, err = c.Message(ctx, "nope")
	assert.Error(t, err)
	assert.Equal(t, 2, mb.getCalls)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(ErrNotAuthenticated))
	assert.False(t, IsRetryable(ErrRefreshInProgress))
	assert.False(t, IsRetryable(ErrEmptyRecipient))
	assert.False(t, IsRetryable(&source.AuthError{SourceType: source.SourceTypeHTTP}))
	assert.True(t, IsRetryable(errors.New("timeout")))
	assert.True(t, IsRetryable(ErrPageMismatch))
}

func TestViewStateString(t *testing.T) {
	assert.Equal(t, "empty", StateEmpty.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "error", StateError.String())
}
