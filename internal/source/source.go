package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// AuthError indicates that authentication has failed or expired for a source.
// It is returned by source clients when a 401 response is received.
type AuthError struct {
	SourceType SourceType
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// SourceType identifies the kind of mailbox backend.
type SourceType string

const (
	SourceTypeHTTP SourceType = "http"
	SourceTypeIMAP SourceType = "imap"
)

// ListOptions controls pagination for list operations. Page is 0-based.
type ListOptions struct {
	Page         int
	PageSize     int
	ForceRefresh bool
}

// Record is a single email as decoded at the network boundary, before any
// normalization. Every field is raw text; dates may be empty or malformed.
type Record struct {
	ID         string
	ExternalID string
	Sender     string
	Recipient  string
	Subject    string
	Body       string
	SentAt     string
	ReadAt     string
	Tags       []string
	Status     string
}

// ListResult holds one page of the mailbox as a flat record list,
// regardless of the shape the server answered with.
type ListResult struct {
	Records []Record

	// Page is the 0-based page the server says it returned.
	Page       int
	TotalPages int
	LastSync   string
}

// RefreshResult reports the outcome of a server-side resync.
type RefreshResult struct {
	NewEmailCount int
	LastSync      string
}

// Mailbox defines the contract every mail backend must implement. It is
// the only network boundary of the sync engine.
type Mailbox interface {
	// Type returns the source type identifier.
	Type() SourceType

	// CurrentUser resolves the identity behind the session.
	CurrentUser(ctx context.Context) (model.User, error)

	// ListEmails retrieves one page of the mailbox.
	ListEmails(ctx context.Context, opts ListOptions) (*ListResult, error)

	// GetEmail retrieves a single message by local id.
	GetEmail(ctx context.Context, id string) (*Record, error)

	// Send delivers a new message.
	Send(ctx context.Context, draft model.Draft) error

	// Refresh asks the backend to pull new mail from its provider.
	Refresh(ctx context.Context) (*RefreshResult, error)

	// MarkRead records that a message has been read.
	MarkRead(ctx context.Context, id string) error
}

// DefaultTimeout is applied by backends when none is configured.
const DefaultTimeout = 30 * time.Second
