package folderview

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/pipeline"
	"github.com/nhle/mailsync/internal/theme"
)

// MessageItem wraps a model.Message so it can be used in a bubbles/list.
type MessageItem struct {
	Message model.Message
	Folder  model.Folder
}

// FilterValue returns the string used for fuzzy filtering.
func (i MessageItem) FilterValue() string { return i.Message.Subject }

// Title returns the subject line.
func (i MessageItem) Title() string { return i.Message.Subject }

// Description returns the correspondent and age.
func (i MessageItem) Description() string {
	return correspondent(i.Message, i.Folder) + " | " + relativeTime(i.Message.SentAt)
}

// ItemDelegate implements list.ItemDelegate for message rows.
type ItemDelegate struct {
	table pipeline.CategoryTable
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single message row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MessageItem)
	if !ok {
		return
	}
	msg := mi.Message
	isSelected := index == m.Index()

	marker := " "
	if msg.IsUnread {
		marker = "●"
	}
	if msg.IsImportant {
		marker = theme.ImportantStyle.Render("★")
	}

	who := fmt.Sprintf("%-24s", truncate(correspondent(msg, mi.Folder), 24))
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	if msg.IsUnread {
		who = theme.UnreadStyle.Render(who)
		subject = theme.UnreadStyle.Render(subject)
	}

	badge := ""
	if msg.Category != "" {
		badge = " " + theme.CategoryStyle(d.table.Color(msg.Category)).Render(msg.Category)
	}

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(msg.SentAt))

	line := fmt.Sprintf("%s %s %s%s  %s", marker, who, subject, badge, timeStr)

	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// correspondent is the other party: the recipient in the sent folder,
// the sender everywhere else.
func correspondent(m model.Message, folder model.Folder) string {
	if folder == model.FolderSent {
		return "To: " + m.RecipientAddress
	}
	if m.SenderName != "" {
		return m.SenderName
	}
	return m.SenderAddress
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("Jan 02")
	}
}
