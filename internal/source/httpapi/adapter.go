package httpapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

// Adapter implements source.Mailbox for the HTTP mail API.
type Adapter struct {
	client *Client
	logger zerolog.Logger
}

// NewAdapter creates a new HTTP mailbox adapter.
func NewAdapter(client *Client, logger zerolog.Logger) *Adapter {
	return &Adapter{client: client, logger: logger}
}

// Type returns the source type identifier for the HTTP API.
func (a *Adapter) Type() source.SourceType {
	return source.SourceTypeHTTP
}

// CurrentUser resolves the session's user via GET /user.
func (a *Adapter) CurrentUser(ctx context.Context) (model.User, error) {
	var resp userResponse
	if err := a.client.Get(ctx, "/user", nil, &resp); err != nil {
		return model.User{}, fmt.Errorf("fetching current user: %w", err)
	}

	return model.User{
		Authenticated: resp.Authenticated && resp.Email != "",
		Email:         resp.Email,
		Name:          resp.Name,
		Picture:       resp.Picture,
	}, nil
}

// ListEmails fetches one page via GET /emails. Pages on the wire are
// 1-based.
func (a *Adapter) ListEmails(
	ctx context.Context,
	opts source.ListOptions,
) (*source.ListResult, error) {
	page := opts.Page
	if page < 0 {
		page = 0
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page+1))
	if opts.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	query.Set("forceRefresh", strconv.FormatBool(opts.ForceRefresh))

	var resp listResponse
	if err := a.client.Get(ctx, "/emails", query, &resp); err != nil {
		return nil, fmt.Errorf("listing emails page %d: %w", page, err)
	}

	records, skipped := decodeBatch(resp).records()
	if skipped > 0 {
		a.logger.Warn().Int("skipped", skipped).Msg("skipped malformed email records")
	}

	result := &source.ListResult{
		Records:    records,
		Page:       page,
		TotalPages: 1,
		LastSync:   resp.LastSync,
	}
	if resp.CurrentPage != nil {
		result.Page = *resp.CurrentPage - 1
	}
	if resp.TotalPages != nil {
		result.TotalPages = *resp.TotalPages
	}

	return result, nil
}

// GetEmail fetches a single message via GET /emails/:id.
func (a *Adapter) GetEmail(ctx context.Context, id string) (*source.Record, error) {
	var resp emailResponse
	if err := a.client.Get(ctx, "/emails/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching email %s: %w", id, err)
	}

	rec, ok := decodeRecord(resp.Email)
	if !ok {
		return nil, fmt.Errorf("fetching email %s: malformed email payload", id)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

// Send delivers a new message via POST /emails.
func (a *Adapter) Send(ctx context.Context, draft model.Draft) error {
	req := sendRequest{
		RecipientEmail: draft.RecipientAddress,
		Subject:        draft.Subject,
		Body:           draft.Body,
	}
	if err := a.client.Post(ctx, "/emails", req, nil); err != nil {
		return fmt.Errorf("sending email to %s: %w", draft.RecipientAddress, err)
	}
	return nil
}

// Refresh asks the server to resync with its provider via
// POST /emails/refresh.
func (a *Adapter) Refresh(ctx context.Context) (*source.RefreshResult, error) {
	var resp refreshResponse
	if err := a.client.Post(ctx, "/emails/refresh", nil, &resp); err != nil {
		return nil, fmt.Errorf("requesting resync: %w", err)
	}
	return &source.RefreshResult{
		NewEmailCount: resp.NewEmailCount,
		LastSync:      resp.LastSync,
	}, nil
}

// MarkRead records a read via POST /emails/:id/read.
func (a *Adapter) MarkRead(ctx context.Context, id string) error {
	if err := a.client.Post(ctx, "/emails/"+url.PathEscape(id)+"/read", nil, nil); err != nil {
		return fmt.Errorf("marking email %s read: %w", id, err)
	}
	return nil
}
