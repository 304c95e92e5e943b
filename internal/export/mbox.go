// Package export writes cached folders out as mbox archives.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/model"
	appsync "github.com/nhle/mailsync/internal/sync"
)

// Source is the part of the sync controller an export reads from.
type Source interface {
	FetchFolder(ctx context.Context, folder model.Folder, page int, forceRefresh bool) (appsync.Page, error)
	Message(ctx context.Context, id string) (model.Message, error)
}

// Options controls which part of a folder is exported.
type Options struct {
	Folder model.Folder

	// MaxPages caps how many pages are walked; zero means all of them.
	MaxPages int

	// Bodies fetches each message's full body. Without it only the
	// list preview is written.
	Bodies bool
}

// Result summarizes a finished export.
type Result struct {
	Messages int
	Pages    int
	Skipped  int
}

// Mbox walks the folder page by page and appends every message to w in
// mbox format. A message whose body cannot be fetched is written with
// its list preview and counted as skipped.
func Mbox(ctx context.Context, src Source, w io.Writer, opts Options, logger zerolog.Logger) (Result, error) {
	var res Result
	mw := mboxlib.NewWriter(w)

	for index := 0; ; index++ {
		if opts.MaxPages > 0 && index >= opts.MaxPages {
			break
		}

		page, err := src.FetchFolder(ctx, opts.Folder, index, false)
		if err != nil {
			return res, fmt.Errorf("fetching %s page %d: %w", opts.Folder, index, err)
		}
		res.Pages++

		for _, m := range page.Messages {
			if opts.Bodies {
				full, err := src.Message(ctx, m.ID)
				if err != nil {
					logger.Warn().Err(err).Str("id", m.ID).Msg("body unavailable, writing preview")
					res.Skipped++
				} else {
					m = full
				}
			}

			if err := writeMessage(mw, m); err != nil {
				return res, fmt.Errorf("writing message %s: %w", m.ID, err)
			}
			res.Messages++
		}

		if !page.HasNext() {
			break
		}
	}

	if err := mw.Close(); err != nil {
		return res, fmt.Errorf("closing mbox: %w", err)
	}

	logger.Info().
		Str("folder", string(opts.Folder)).
		Int("messages", res.Messages).
		Int("pages", res.Pages).
		Msg("export complete")
	return res, nil
}

func writeMessage(mw *mboxlib.Writer, m model.Message) error {
	from := m.SenderAddress
	if from == "" {
		from = "MAILER-DAEMON"
	}

	out, err := mw.CreateMessage(from, m.SentAt)
	if err != nil {
		return err
	}

	var h mail.Header
	h.SetDate(m.SentAt)
	h.SetAddressList("From", []*mail.Address{{Name: m.SenderName, Address: m.SenderAddress}})
	if m.RecipientAddress != "" {
		h.SetAddressList("To", []*mail.Address{{Address: m.RecipientAddress}})
	}
	h.SetSubject(m.Subject)
	if m.ExternalID != "" {
		h.SetMessageID(m.ExternalID)
	}
	h.Set("X-Mailsync-Id", m.ID)
	status := "O"
	if !m.IsUnread {
		status = "RO"
	}
	h.Set("Status", status)
	if m.ReadAt != nil {
		h.Set("X-Mailsync-Read-At", m.ReadAt.UTC().Format(time.RFC3339))
	}
	h.SetContentType("text/plain", map[string]string{"charset": "UTF-8"})

	bw, err := mail.CreateSingleInlineWriter(out, h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(bw, m.Body); err != nil {
		return err
	}
	return bw.Close()
}
