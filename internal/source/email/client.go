package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailsync/internal/source"
)

// Envelope is the list-level view of one IMAP message.
type Envelope struct {
	Mailbox   string
	UID       uint32
	MessageID string
	Subject   string
	From      string // "Name <addr>" or bare address
	To        []string
	Date      time.Time
	Flags     []string
}

// imapStore runs one short IMAP session per call. Sessions are not
// pooled: the engine issues a handful of calls per user action.
type imapStore struct {
	addr     string
	username string
	password string
	implicit bool
}

func newIMAPStore(host, port, username, password string, implicitTLS bool) *imapStore {
	return &imapStore{
		addr:     host + ":" + port,
		username: username,
		password: password,
		implicit: implicitTLS,
	}
}

// login dials and authenticates. Bad credentials come back as an
// *source.AuthError so the UI can send the user to `mailsync login`.
func (s *imapStore) login() (*imapclient.Client, error) {
	dial := imapclient.DialStartTLS
	if s.implicit {
		dial = imapclient.DialTLS
	}
	c, err := dial(s.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", s.addr, err)
	}

	if err := c.Login(s.username, s.password).Wait(); err != nil {
		_ = c.Close()
		return nil, &source.AuthError{
			SourceType: source.SourceTypeIMAP,
			Message:    fmt.Sprintf("login as %s rejected: %v", s.username, err),
		}
	}
	return c, nil
}

// session logs in, opens mailbox and hands the client to fn. Read-only
// sessions use EXAMINE so nothing the engine reads gets flagged \Seen.
func (s *imapStore) session(
	ctx context.Context,
	mailbox string,
	readOnly bool,
	fn func(c *imapclient.Client) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := s.login()
	if err != nil {
		return err
	}
	defer func() { _ = c.Logout().Wait() }()

	if _, err := c.Select(mailbox, &imap.SelectOptions{ReadOnly: readOnly}).Wait(); err != nil {
		return fmt.Errorf("opening %s: %w", mailbox, err)
	}
	return fn(c)
}

// ping checks that the credentials are accepted.
func (s *imapStore) ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := s.login()
	if err != nil {
		return err
	}
	return c.Logout().Wait()
}

// envelopes returns the newest limit messages of mailbox. A limit of zero
// lists everything.
func (s *imapStore) envelopes(ctx context.Context, mailbox string, limit int) ([]Envelope, error) {
	var out []Envelope
	err := s.session(ctx, mailbox, true, func(c *imapclient.Client) error {
		found, err := c.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
		if err != nil {
			return fmt.Errorf("searching %s: %w", mailbox, err)
		}

		uids := found.AllUIDs()
		if len(uids) == 0 {
			return nil
		}
		// UIDs ascend with arrival.
		if limit > 0 && len(uids) > limit {
			uids = uids[len(uids)-limit:]
		}

		fetch := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
			UID:      true,
			Flags:    true,
			Envelope: true,
		})
		for msg := fetch.Next(); msg != nil; msg = fetch.Next() {
			buf, err := msg.Collect()
			if err != nil {
				continue
			}
			out = append(out, toEnvelope(mailbox, buf))
		}
		if err := fetch.Close(); err != nil {
			return fmt.Errorf("listing %s: %w", mailbox, err)
		}
		return nil
	})
	return out, err
}

// message fetches the envelope and readable body of one message. The body
// section is peeked so reading does not mark the message seen.
func (s *imapStore) message(ctx context.Context, mailbox string, uid uint32) (Envelope, string, error) {
	var (
		env  Envelope
		body string
	)
	err := s.session(ctx, mailbox, true, func(c *imapclient.Client) error {
		section := &imap.FetchItemBodySection{Peek: true}
		fetch := c.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
			UID:         true,
			Flags:       true,
			Envelope:    true,
			BodySection: []*imap.FetchItemBodySection{section},
		})
		defer fetch.Close()

		msg := fetch.Next()
		if msg == nil {
			return fmt.Errorf("uid %d not in %s", uid, mailbox)
		}
		buf, err := msg.Collect()
		if err != nil {
			return fmt.Errorf("reading uid %d: %w", uid, err)
		}

		env = toEnvelope(mailbox, buf)
		if raw := buf.FindBodySection(section); raw != nil {
			body = readableBody(raw)
		}
		return fetch.Close()
	})
	return env, body, err
}

// markSeen adds \Seen to one message.
func (s *imapStore) markSeen(ctx context.Context, mailbox string, uid uint32) error {
	return s.session(ctx, mailbox, false, func(c *imapclient.Client) error {
		return c.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagSeen},
		}, nil).Close()
	})
}

// count returns the number of messages in mailbox without opening it.
func (s *imapStore) count(ctx context.Context, mailbox string) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c, err := s.login()
	if err != nil {
		return 0, err
	}
	defer func() { _ = c.Logout().Wait() }()

	st, err := c.Status(mailbox, &imap.StatusOptions{NumMessages: true}).Wait()
	if err != nil {
		return 0, fmt.Errorf("status of %s: %w", mailbox, err)
	}
	if st.NumMessages == nil {
		return 0, nil
	}
	return *st.NumMessages, nil
}

func toEnvelope(mailbox string, buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{Mailbox: mailbox, UID: uint32(buf.UID)}
	for _, f := range buf.Flags {
		env.Flags = append(env.Flags, string(f))
	}

	e := buf.Envelope
	if e == nil {
		return env
	}
	env.MessageID = e.MessageID
	env.Subject = e.Subject
	env.Date = e.Date
	if len(e.From) > 0 {
		env.From = formatAddress(e.From[0])
	}
	for _, to := range e.To {
		env.To = append(env.To, to.Addr())
	}
	return env
}

func formatAddress(a imap.Address) string {
	if a.Name == "" {
		return a.Addr()
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Addr())
}

// readableBody returns the first text/plain part of a raw message, or the
// first text/html part when there is no plain text. Input that is not
// MIME is returned as is.
func readableBody(raw []byte) string {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer r.Close()

	var html string
	for {
		part, err := r.NextPart()
		if err != nil {
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		switch {
		case strings.HasPrefix(ct, "text/plain"):
			b, err := io.ReadAll(part.Body)
			if err == nil {
				return string(b)
			}
		case strings.HasPrefix(ct, "text/html") && html == "":
			if b, err := io.ReadAll(part.Body); err == nil {
				html = string(b)
			}
		}
	}
	return html
}
