package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/model"
	appsync "github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/theme"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(theme.ColorGreen)
	errorStyle   = lipgloss.NewStyle().Foreground(theme.ColorRed)
	warningStyle = lipgloss.NewStyle().Foreground(theme.ColorYellow)
	dimStyle     = lipgloss.NewStyle().Foreground(theme.ColorGray)
)

var stdout io.Writer = os.Stdout

// printJSON writes data as indented JSON when --json is set and reports
// whether it did.
func printJSON(data any) bool {
	if !jsonOutput {
		return false
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
	return true
}

func printSuccess(format string, args ...any) {
	fmt.Fprintf(stdout, "  %s %s\n", successStyle.Render("✓"), fmt.Sprintf(format, args...))
}

func printWarning(msg string) {
	fmt.Fprintf(stdout, "  %s %s\n", warningStyle.Render("!"), warningStyle.Render(msg))
}

func printHint(msg string) {
	fmt.Fprintf(stdout, "  %s\n", dimStyle.Render(msg))
}

// printPage renders one folder page as a compact table.
func printPage(p appsync.Page) {
	if printJSON(p) {
		return
	}

	fmt.Fprintf(stdout, "%s  %s\n\n",
		theme.HeaderStyle.Render(strings.ToUpper(string(p.Folder))),
		dimStyle.Render(fmt.Sprintf("page %d/%d", p.Index+1, max(p.TotalPages, 1))),
	)
	if len(p.Messages) == 0 {
		printHint("No messages.")
		return
	}

	for _, m := range p.Messages {
		marker := " "
		if m.IsUnread {
			marker = theme.UnreadStyle.Render("●")
		}
		fmt.Fprintf(stdout, "%s %-16s %-28s %s  %s\n",
			marker,
			dimStyle.Render(m.SentAt.Local().Format("Jan 02 15:04")),
			clip(correspondent(m, p.Folder), 28),
			m.Subject,
			dimStyle.Render(m.ID),
		)
	}
	if !p.LastSync.IsZero() {
		fmt.Fprintln(stdout)
		printHint("synced " + p.LastSync.Local().Format(time.RFC1123))
	}
}

// printMessage renders a single message with its headers.
func printMessage(m model.Message) {
	if printJSON(m) {
		return
	}

	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(stdout, "%s %s\n", dimStyle.Render(fmt.Sprintf("%-8s", label+":")), value)
	}
	row("From", m.SenderAddress)
	row("To", m.RecipientAddress)
	row("Subject", m.Subject)
	row("Date", m.SentAt.Local().Format(time.RFC1123))
	row("Category", m.Category)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, m.Body)
}

func correspondent(m model.Message, folder model.Folder) string {
	if folder == model.FolderSent {
		return "To: " + m.RecipientAddress
	}
	if m.SenderName != "" {
		return m.SenderName
	}
	return m.SenderAddress
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
