package model

import "time"

// Folder identifies a logical mailbox view.
type Folder string

const (
	FolderInbox Folder = "inbox"
	FolderSent  Folder = "sent"
)

// KnownFolders lists the folders that have a cache entry. Any other
// folder is accepted by the controller but never cached.
var KnownFolders = []Folder{FolderInbox, FolderSent}

// IsKnown reports whether f is one of KnownFolders.
func (f Folder) IsKnown() bool {
	for _, k := range KnownFolders {
		if f == k {
			return true
		}
	}
	return false
}

// Well-known classification tags. Comparison is case-insensitive.
const (
	TagUnread    = "UNREAD"
	TagImportant = "IMPORTANT"
	TagStarred   = "STARRED"
)

// Message is the processed representation of a single email, built fresh
// from every fetch response.
type Message struct {
	// ID is the stable local identifier, unique within a mailbox view.
	ID string `json:"id"`

	// ExternalID is the identifier from the upstream mail provider.
	// When set it is the deduplication key.
	ExternalID string `json:"external_id,omitempty"`

	SenderAddress    string `json:"sender_address"`
	SenderName       string `json:"sender_name,omitempty"`
	RecipientAddress string `json:"recipient_address"`

	Subject string `json:"subject"`

	// Body may be markdown, HTML, or plaintext.
	Body string `json:"body"`

	// SentAt is always populated, even when the server value was missing
	// or corrupt.
	SentAt time.Time `json:"sent_at"`

	// SentTimestamp is SentAt in epoch milliseconds, used for ordering.
	SentTimestamp int64 `json:"sent_timestamp"`

	// ReadAt is nil while the message is unread.
	ReadAt *time.Time `json:"read_at,omitempty"`

	// Tags holds the opaque server classification strings.
	Tags []string `json:"tags,omitempty"`

	// Status is the server-side delivery status, passed through as-is.
	Status string `json:"status,omitempty"`

	// Derived at classify time.
	IsUnread    bool   `json:"is_unread"`
	IsImportant bool   `json:"is_important"`
	Category    string `json:"category,omitempty"`
}

// Key returns the deduplication key: ExternalID when present, else ID.
func (m Message) Key() string {
	if m.ExternalID != "" {
		return m.ExternalID
	}
	return m.ID
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	c := m
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	return c
}

// CloneMessages deep-copies a slice of messages.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// User is the authenticated account as reported by the mail API.
type User struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Draft is an outgoing message composed by the user.
type Draft struct {
	RecipientAddress string `json:"recipient_email"`
	Subject          string `json:"subject"`
	Body             string `json:"body"`
}
