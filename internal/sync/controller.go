// Package sync owns the client-side view of the mailbox: it fetches pages
// through a source.Mailbox, runs them through the pipeline and keeps the
// per-folder cache the UI reads from.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/pipeline"
	"github.com/nhle/mailsync/internal/source"
)

const (
	defaultPageSize        = 20
	defaultDetailCacheSize = 128
	defaultDetailTTL       = 10 * time.Minute
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClassifier replaces the default category classifier.
func WithClassifier(cl *pipeline.Classifier) Option {
	return func(c *Controller) {
		c.classifier = cl
	}
}

// WithClock sets the time source used for fallbacks and optimistic
// read instants.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPageSize sets the number of messages requested per page.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithDetailCache sets the size and lifetime of the message detail cache.
// A ttl of zero keeps entries until they are evicted by size.
func WithDetailCache(size int, ttl time.Duration) Option {
	return func(c *Controller) {
		if size > 0 {
			c.detailSize = size
		}
		c.detailTTL = ttl
	}
}

// Controller is the only component that talks to the mailbox. All
// methods are safe for concurrent use.
type Controller struct {
	mailbox    source.Mailbox
	cache      *Cache
	normalizer *pipeline.Normalizer
	classifier *pipeline.Classifier
	logger     zerolog.Logger
	now        func() time.Time
	pageSize   int

	detailSize int
	detailTTL  time.Duration
	details    *expirable.LRU[string, model.Message]
	group      singleflight.Group

	mu       gosync.Mutex
	user     *model.User
	active   model.Folder
	loaded   bool
	seq      uint64
	statuses map[model.Folder]*folderStatus
}

// New creates a Controller reading from mailbox.
func New(mailbox source.Mailbox, opts ...Option) *Controller {
	c := &Controller{
		mailbox:    mailbox,
		cache:      NewCache(),
		logger:     zerolog.Nop(),
		now:        time.Now,
		pageSize:   defaultPageSize,
		detailSize: defaultDetailCacheSize,
		detailTTL:  defaultDetailTTL,
		active:     model.FolderInbox,
		statuses:   make(map[model.Folder]*folderStatus),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.normalizer = pipeline.NewNormalizer(c.logger, c.now)
	if c.classifier == nil {
		c.classifier = pipeline.NewClassifier(pipeline.DefaultCategoryTable(), c.logger, c.now)
	}
	c.details = expirable.NewLRU[string, model.Message](c.detailSize, nil, c.detailTTL)

	return c
}

// Classifier returns the classifier used for incoming records.
func (c *Controller) Classifier() *pipeline.Classifier {
	return c.classifier
}

// ActiveFolder returns the folder last selected with SwitchFolder.
func (c *Controller) ActiveFolder() model.Folder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// User returns the resolved user, or the zero User before the first
// successful resolution.
func (c *Controller) User() model.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return model.User{}
	}
	return *c.user
}

// View returns a rendering snapshot of folder.
func (c *Controller) View(folder model.Folder) FolderView {
	entry, cached := c.cache.Read(folder)

	c.mu.Lock()
	st := c.statuses[folder]
	var (
		inflight   int
		err        error
		refreshing bool
	)
	if st != nil {
		inflight, err, refreshing = st.inflight, st.err, st.refreshing
	}
	c.mu.Unlock()

	view := FolderView{
		Page:       Page{Folder: folder, Messages: []model.Message{}},
		Err:        err,
		Refreshing: refreshing,
	}
	if cached {
		view.Page = pageFromEntry(folder, entry)
	}

	switch {
	case err != nil:
		view.State = StateError
	case cached:
		view.State = StateReady
	case inflight > 0:
		view.State = StateLoading
	default:
		view.State = StateEmpty
	}
	return view
}

// FetchFolder fetches one page of the mailbox, rebuilds both known
// folders from it and returns the requested folder's page.
//
// On failure the cache is left untouched and the folder's view switches
// to the error state; the returned page is the previously cached one.
func (c *Controller) FetchFolder(
	ctx context.Context,
	folder model.Folder,
	page int,
	forceRefresh bool,
) (Page, error) {
	seq := c.begin(folder)
	defer c.finish(folder)

	log := c.logger.With().
		Str("folder", string(folder)).
		Int("page", page).
		Uint64("seq", seq).
		Logger()

	user, err := c.resolveUser(ctx)
	if err != nil {
		log.Error().Err(err).Msg("resolving user failed")
		c.settle(folder, seq, err)
		return c.cachedPage(folder), err
	}
	if !user.Authenticated {
		log.Warn().Msg("fetch skipped, no authenticated user")
		c.settle(folder, seq, ErrNotAuthenticated)
		return Page{Folder: folder, Messages: []model.Message{}}, ErrNotAuthenticated
	}

	res, err := c.mailbox.ListEmails(ctx, source.ListOptions{
		Page:         page,
		PageSize:     c.pageSize,
		ForceRefresh: forceRefresh,
	})
	if err != nil {
		log.Error().Err(err).Msg("listing emails failed")
		c.settle(folder, seq, err)
		return c.cachedPage(folder), fmt.Errorf("fetching %s page %d: %w", folder, page, err)
	}

	if res.Page != page {
		log.Error().Int("got", res.Page).Msg("server answered with another page")
		err := fmt.Errorf("%w: requested %d, got %d", ErrPageMismatch, page, res.Page)
		c.settle(folder, seq, err)
		return c.cachedPage(folder), err
	}

	totalPages := res.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}

	msgs := make([]model.Message, 0, len(res.Records))
	for _, rec := range res.Records {
		msgs = append(msgs, c.toMessage(rec))
	}
	msgs = pipeline.Dedupe(msgs)
	parts := pipeline.Partition(msgs, user.Email, log)
	syncedAt := c.syncInstant(res.LastSync)

	var result Page
	stale := false
	for _, f := range model.KnownFolders {
		sorted := pipeline.SortDescending(parts.For(f))
		if !c.commit(f, seq, sorted, page, totalPages, syncedAt) && f == folder {
			stale = true
		}
		if f == folder {
			result = Page{
				Folder:     f,
				Messages:   model.CloneMessages(sorted),
				Index:      page,
				TotalPages: totalPages,
				LastSync:   syncedAt,
			}
		}
	}

	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()

	if !folder.IsKnown() {
		log.Debug().Msg("folder has no cache, returning empty page")
		return Page{
			Folder:     folder,
			Messages:   []model.Message{},
			Index:      page,
			TotalPages: totalPages,
			LastSync:   syncedAt,
		}, nil
	}

	if stale {
		log.Debug().Msg("discarding stale response")
		return c.cachedPage(folder), nil
	}

	log.Debug().
		Int("received", len(parts.Received)).
		Int("sent", len(parts.Sent)).
		Int("total_pages", totalPages).
		Msg("folder fetched")
	return result, nil
}

// SwitchFolder makes folder the active one. Once the mailbox has loaded
// it is served from cache without touching the network.
func (c *Controller) SwitchFolder(ctx context.Context, folder model.Folder) (Page, error) {
	c.mu.Lock()
	c.active = folder
	loaded := c.loaded
	c.mu.Unlock()

	if loaded {
		return c.cachedPage(folder), nil
	}
	return c.FetchFolder(ctx, folder, 0, false)
}

// Refresh asks the server to resync and then refetches the first page of
// folder. A failed resync is logged and the fetch still happens. A
// successful fetch drops every cached message detail.
func (c *Controller) Refresh(ctx context.Context, folder model.Folder) (Page, error) {
	c.mu.Lock()
	st := c.status(folder)
	if st.refreshing {
		c.mu.Unlock()
		return c.cachedPage(folder), ErrRefreshInProgress
	}
	st.refreshing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		st.refreshing = false
		c.mu.Unlock()
	}()

	res, err := c.mailbox.Refresh(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Str("folder", string(folder)).Msg("server resync failed")
	} else {
		c.logger.Info().
			Int("new", res.NewEmailCount).
			Str("last_sync", res.LastSync).
			Msg("server resync complete")
	}

	page, err := c.FetchFolder(ctx, folder, 0, true)
	if err == nil {
		c.details.Purge()
	}
	return page, err
}

// MarkRead marks the message read locally and then tells the server. A
// server failure is returned but the local change is kept; the next
// fetch reconciles it.
func (c *Controller) MarkRead(ctx context.Context, id string) error {
	c.MarkReadLocal(id)
	return c.AckRead(ctx, id)
}

// MarkReadLocal sets readAt on every cached copy of the message without
// any network call. It reports whether a folder held the message.
func (c *Controller) MarkReadLocal(id string) bool {
	now := c.now().UTC().Truncate(time.Millisecond)

	found := false
	for _, f := range model.KnownFolders {
		c.cache.Update(f, func(e *Entry) {
			for i := range e.Messages {
				if e.Messages[i].ID == id {
					markMessageRead(&e.Messages[i], now)
					found = true
				}
			}
		})
	}
	if m, ok := c.details.Peek(id); ok {
		markMessageRead(&m, now)
		c.details.Add(id, m)
	}
	if !found {
		c.logger.Debug().Str("id", id).Msg("mark read for message not in cache")
	}
	return found
}

// AckRead sends a mark read to the server. Local state is not touched.
func (c *Controller) AckRead(ctx context.Context, id string) error {
	if err := c.mailbox.MarkRead(ctx, id); err != nil {
		c.logger.Error().Err(err).Str("id", id).Msg("server rejected mark read")
		return fmt.Errorf("marking %s read: %w", id, err)
	}
	return nil
}

// Paginate fetches page index of folder. Indexes outside the folder's
// known page range are ignored and the cached page is returned.
func (c *Controller) Paginate(ctx context.Context, folder model.Folder, index int) (Page, error) {
	total := 1
	if e, ok := c.cache.Read(folder); ok && e.TotalPages > 0 {
		total = e.TotalPages
	}

	if index < 0 || index >= total {
		c.logger.Debug().
			Str("folder", string(folder)).
			Int("index", index).
			Int("total_pages", total).
			Msg("page out of range")
		return c.cachedPage(folder), nil
	}
	return c.FetchFolder(ctx, folder, index, false)
}

// Send delivers draft and then reloads the sent folder. Once the message
// is accepted, a failed reload is only logged.
func (c *Controller) Send(ctx context.Context, draft model.Draft) error {
	if strings.TrimSpace(draft.RecipientAddress) == "" {
		return ErrEmptyRecipient
	}

	if err := c.mailbox.Send(ctx, draft); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	if _, err := c.FetchFolder(ctx, model.FolderSent, 0, true); err != nil {
		c.logger.Warn().Err(err).Msg("message sent but reloading sent folder failed")
	}
	return nil
}

// Message returns the full message id, fetching it at most once per
// concurrent burst of callers.
func (c *Controller) Message(ctx context.Context, id string) (model.Message, error) {
	if m, ok := c.details.Get(id); ok {
		return m.Clone(), nil
	}

	v, err, shared := c.group.Do(id, func() (any, error) {
		rec, err := c.mailbox.GetEmail(ctx, id)
		if err != nil {
			return nil, err
		}
		m := c.toMessage(*rec)
		c.details.Add(id, m)
		return m, nil
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("loading message %s: %w", id, err)
	}
	if shared {
		c.logger.Debug().Str("id", id).Msg("detail fetch coalesced")
	}
	return v.(model.Message).Clone(), nil
}

// resolveUser returns the cached user or asks the mailbox. Only an
// authenticated answer is cached.
func (c *Controller) resolveUser(ctx context.Context) (model.User, error) {
	c.mu.Lock()
	if c.user != nil {
		u := *c.user
		c.mu.Unlock()
		return u, nil
	}
	c.mu.Unlock()

	u, err := c.mailbox.CurrentUser(ctx)
	if err != nil {
		return model.User{}, fmt.Errorf("resolving current user: %w", err)
	}
	if !u.Authenticated || strings.TrimSpace(u.Email) == "" {
		return model.User{}, nil
	}

	c.mu.Lock()
	c.user = &u
	c.mu.Unlock()
	return u, nil
}

// toMessage normalizes and classifies a boundary record.
func (c *Controller) toMessage(rec source.Record) model.Message {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}

	sent := c.normalizer.Normalize(rec.SentAt)
	m := model.Message{
		ID:               id,
		ExternalID:       rec.ExternalID,
		SenderAddress:    pipeline.NormalizeAddress(rec.Sender),
		SenderName:       pipeline.DisplayName(rec.Sender),
		RecipientAddress: pipeline.NormalizeAddress(rec.Recipient),
		Subject:          rec.Subject,
		Body:             rec.Body,
		SentAt:           sent.Instant,
		SentTimestamp:    sent.Timestamp,
		ReadAt:           c.normalizer.NormalizeOptional(rec.ReadAt),
		Tags:             append([]string(nil), rec.Tags...),
		Status:           rec.Status,
	}
	c.classifier.Apply(&m)
	return m
}

func (c *Controller) syncInstant(raw string) time.Time {
	if strings.TrimSpace(raw) == "" {
		return c.now().UTC().Truncate(time.Millisecond)
	}
	return c.normalizer.Normalize(raw).Instant
}

func (c *Controller) cachedPage(folder model.Folder) Page {
	if e, ok := c.cache.Read(folder); ok {
		return pageFromEntry(folder, e)
	}
	return Page{Folder: folder, Messages: []model.Message{}}
}

// status returns the folder's bookkeeping, creating it. c.mu must be held.
func (c *Controller) status(folder model.Folder) *folderStatus {
	st, ok := c.statuses[folder]
	if !ok {
		st = &folderStatus{}
		c.statuses[folder] = st
	}
	return st
}

// begin allocates the fetch's sequence number.
func (c *Controller) begin(folder model.Folder) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.status(folder).inflight++
	return c.seq
}

func (c *Controller) finish(folder model.Folder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status(folder).inflight--
}

// settle records a failed outcome unless a newer fetch already settled.
func (c *Controller) settle(folder model.Folder, seq uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status(folder)
	if seq > st.settled {
		st.settled = seq
		st.err = err
	}
}

// commit writes a folder's partition unless a newer fetch has already
// written it. It reports whether the write happened.
func (c *Controller) commit(
	folder model.Folder,
	seq uint64,
	msgs []model.Message,
	page, totalPages int,
	syncedAt time.Time,
) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.status(folder)
	if seq <= st.written {
		return false
	}
	st.written = seq
	if seq > st.settled {
		st.settled = seq
		st.err = nil
	}
	c.cache.Write(folder, msgs, page, totalPages, syncedAt)
	return true
}

func markMessageRead(m *model.Message, now time.Time) {
	if m.ReadAt == nil {
		t := now
		m.ReadAt = &t
	}
	m.IsUnread = false
	if len(m.Tags) == 0 {
		return
	}
	tags := m.Tags[:0:0]
	for _, t := range m.Tags {
		if !strings.EqualFold(t, model.TagUnread) {
			tags = append(tags, t)
		}
	}
	m.Tags = tags
}

// IsRetryable reports whether err is worth a manual retry from the UI.
// Precondition failures and re-entry are not.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrRefreshInProgress),
		errors.Is(err, ErrEmptyRecipient):
		return false
	case source.IsAuthError(err):
		return false
	default:
		return true
	}
}
