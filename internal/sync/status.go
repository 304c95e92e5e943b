package sync

import (
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// ViewState is what a folder view should render.
type ViewState int

const (
	// StateEmpty means the folder has never been fetched.
	StateEmpty ViewState = iota
	// StateLoading means the first fetch of the folder is in flight.
	StateLoading
	// StateReady means cached data is available.
	StateReady
	// StateError means the latest fetch failed. Cached data, if any, is
	// still carried in the view.
	StateError
)

func (s ViewState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Page is one page of a folder as returned by the controller.
type Page struct {
	Folder     model.Folder
	Messages   []model.Message
	Index      int // 0-based
	TotalPages int
	LastSync   time.Time
}

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool {
	return p.Index+1 < p.TotalPages
}

// HasPrev reports whether an earlier page exists.
func (p Page) HasPrev() bool {
	return p.Index > 0
}

// FolderView is a snapshot of a folder for rendering.
type FolderView struct {
	Page
	State      ViewState
	Err        error
	Refreshing bool
}

// folderStatus tracks fetch bookkeeping for a single folder.
type folderStatus struct {
	// written is the sequence number of the fetch that last wrote the
	// cache entry; settled is the newest fetch whose outcome was recorded.
	written  uint64
	settled  uint64
	inflight int
	err      error

	refreshing bool
}

func pageFromEntry(folder model.Folder, e Entry) Page {
	return Page{
		Folder:     folder,
		Messages:   e.Messages,
		Index:      e.Page,
		TotalPages: e.TotalPages,
		LastSync:   e.SyncedAt,
	}
}
