package pipeline

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/model"
)

// Category is one entry of a CategoryTable.
type Category struct {
	Name  string
	Tag   string
	Color string
}

// CategoryTable is an ordered, immutable tag-to-category mapping. Earlier
// entries win when a message carries several category tags.
type CategoryTable struct {
	entries []Category
}

// NewCategoryTable copies entries into a new table. Tags are matched
// case-insensitively.
func NewCategoryTable(entries []Category) CategoryTable {
	cp := make([]Category, len(entries))
	for i, e := range entries {
		e.Tag = strings.ToUpper(strings.TrimSpace(e.Tag))
		cp[i] = e
	}
	return CategoryTable{entries: cp}
}

// CategoryTableFromConfig builds a table from configuration entries.
func CategoryTableFromConfig(cfg []model.CategoryConfig) CategoryTable {
	entries := make([]Category, 0, len(cfg))
	for _, c := range cfg {
		entries = append(entries, Category{Name: c.Name, Tag: c.Tag, Color: c.Color})
	}
	return NewCategoryTable(entries)
}

// DefaultCategoryTable returns personal > social > updates > forums >
// promotions.
func DefaultCategoryTable() CategoryTable {
	return CategoryTableFromConfig(model.DefaultCategories())
}

// Entries returns a copy of the table in priority order.
func (t CategoryTable) Entries() []Category {
	return append([]Category(nil), t.entries...)
}

// Color returns the display color for a category name, or "".
func (t CategoryTable) Color(name string) string {
	for _, e := range t.entries {
		if e.Name == name {
			return e.Color
		}
	}
	return ""
}

// Classification is the set of flags derived from a message's tags.
type Classification struct {
	IsUnread    bool
	IsImportant bool
	Category    string
	ReadAt      *time.Time
}

// Classifier derives unread/important/category flags from tags.
type Classifier struct {
	table  CategoryTable
	logger zerolog.Logger
	now    func() time.Time
}

// NewClassifier creates a Classifier over the given table. A nil clock
// means time.Now.
func NewClassifier(table CategoryTable, logger zerolog.Logger, now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{table: table, logger: logger, now: now}
}

// Table returns the classifier's category table.
func (c *Classifier) Table() CategoryTable {
	return c.table
}

// Classify reconciles the tag set with the existing read instant.
//
// The UNREAD tag is authoritative when present and clears readAt. When it
// is absent the message is read; a missing readAt is synthesized as now.
func (c *Classifier) Classify(tags []string, existingReadAt *time.Time) Classification {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}

	_, unread := set[model.TagUnread]
	_, important := set[model.TagImportant]
	_, starred := set[model.TagStarred]

	out := Classification{
		IsUnread:    unread,
		IsImportant: important || starred,
	}

	switch {
	case unread:
		if existingReadAt != nil {
			c.logger.Debug().Msg("unread tag overrides existing read_at")
		}
		out.ReadAt = nil
	case existingReadAt == nil:
		now := c.now().UTC()
		out.ReadAt = &now
	default:
		t := *existingReadAt
		out.ReadAt = &t
	}

	for _, e := range c.table.entries {
		if _, ok := set[e.Tag]; ok {
			out.Category = e.Name
			break
		}
	}

	return out
}

// Apply classifies m in place.
func (c *Classifier) Apply(m *model.Message) {
	cl := c.Classify(m.Tags, m.ReadAt)
	m.IsUnread = cl.IsUnread
	m.IsImportant = cl.IsImportant
	m.Category = cl.Category
	m.ReadAt = cl.ReadAt
}
