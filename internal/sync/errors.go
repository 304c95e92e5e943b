package sync

import "errors"

var (
	// ErrNotAuthenticated is returned by folder operations when the mail
	// API reports no signed-in user. The returned page is empty.
	ErrNotAuthenticated = errors.New("no authenticated user")

	// ErrRefreshInProgress is returned when Refresh is called for a folder
	// that is already refreshing.
	ErrRefreshInProgress = errors.New("refresh already in progress")

	// ErrPageMismatch is returned when the server answers with a page other
	// than the one requested. Nothing is cached.
	ErrPageMismatch = errors.New("server returned a different page than requested")

	// ErrEmptyRecipient is returned by Send for drafts with no recipient.
	ErrEmptyRecipient = errors.New("draft has no recipient")
)
