package sync

import (
	gosync "sync"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// Entry is the cached state of one folder: the last fetched page.
type Entry struct {
	Messages   []model.Message
	Page       int
	TotalPages int
	SyncedAt   time.Time
}

func (e Entry) clone() Entry {
	e.Messages = model.CloneMessages(e.Messages)
	return e
}

// Cache holds the last fetched page of each known folder in memory.
// Entries never expire; a later Write replaces them. Folders outside
// model.KnownFolders are never stored.
type Cache struct {
	mu      gosync.RWMutex
	entries map[model.Folder]Entry
}

// NewCache creates an empty folder cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[model.Folder]Entry, len(model.KnownFolders))}
}

// Read returns a copy of the folder's entry. The second result is false
// until the folder has been written.
func (c *Cache) Read(folder model.Folder) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[folder]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Write replaces the folder's entry. It reports false, and stores
// nothing, for unknown folders.
func (c *Cache) Write(
	folder model.Folder,
	msgs []model.Message,
	page, totalPages int,
	syncedAt time.Time,
) bool {
	if !folder.IsKnown() {
		return false
	}

	e := Entry{
		Messages:   model.CloneMessages(msgs),
		Page:       page,
		TotalPages: totalPages,
		SyncedAt:   syncedAt,
	}
	if e.Messages == nil {
		e.Messages = []model.Message{}
	}

	c.mu.Lock()
	c.entries[folder] = e
	c.mu.Unlock()
	return true
}

// Update runs fn against the stored entry under the write lock. It
// reports false when the folder has no entry.
func (c *Cache) Update(folder model.Folder, fn func(*Entry)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[folder]
	if !ok {
		return false
	}
	fn(&e)
	c.entries[folder] = e
	return true
}
