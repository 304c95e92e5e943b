package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"regexp"
	"sort"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

// Adapter implements source.Mailbox for Email (IMAP/SMTP).
type Adapter struct {
	store       *imapStore
	smtp        smtpSettings
	address     string
	sentMailbox string
	limit       int
	logger      zerolog.Logger

	mu        gosync.Mutex
	lastCount uint32
}

// NewAdapter creates a new email source adapter.
func NewAdapter(
	cfg model.IMAPConfig,
	password string,
	logger zerolog.Logger,
) *Adapter {
	smtpHost := cfg.SMTPHost
	if smtpHost == "" {
		smtpHost = cfg.Host
	}
	sent := cfg.SentMailbox
	if sent == "" {
		sent = "Sent"
	}

	if !strings.Contains(cfg.FromAddress(), "@") {
		logger.Warn().
			Str("username", cfg.Username).
			Msg("imap username is not an email address; set imap.address or no message will match the user")
	}

	return &Adapter{
		smtp: smtpSettings{
			Host:     smtpHost,
			Port:     cfg.SMTPPort,
			Username: cfg.Username,
			Password: password,
			TLS:      cfg.TLS,
		},
		store:       newIMAPStore(cfg.Host, cfg.Port, cfg.Username, password, cfg.TLS),
		address:     cfg.FromAddress(),
		sentMailbox: sent,
		limit:       cfg.Limit,
		logger:      logger,
	}
}

// Type returns the source type identifier for IMAP.
func (a *Adapter) Type() source.SourceType {
	return source.SourceTypeIMAP
}

// CurrentUser verifies IMAP credentials by connecting and reports the
// configured address, or the login name when none is set.
func (a *Adapter) CurrentUser(ctx context.Context) (model.User, error) {
	if err := a.store.ping(ctx); err != nil {
		return model.User{}, fmt.Errorf("validating email connection: %w", err)
	}

	return model.User{
		Authenticated: a.address != "",
		Email:         a.address,
	}, nil
}

// ListEmails lists INBOX and the sent mailbox, newest first, and returns
// the requested page of the combined list.
func (a *Adapter) ListEmails(
	ctx context.Context,
	opts source.ListOptions,
) (*source.ListResult, error) {
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	var envelopes []Envelope
	for _, mbox := range []string{"INBOX", a.sentMailbox} {
		envs, err := a.store.envelopes(ctx, mbox, a.limit)
		if err != nil {
			return nil, fmt.Errorf("fetching email items: %w", err)
		}
		envelopes = append(envelopes, envs...)
	}

	sort.SliceStable(envelopes, func(i, j int) bool {
		return envelopes[i].Date.After(envelopes[j].Date)
	})

	totalPages := (len(envelopes) + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	page := opts.Page
	if page < 0 {
		page = 0
	}
	start := page * pageSize
	if start > len(envelopes) {
		start = len(envelopes)
	}
	end := start + pageSize
	if end > len(envelopes) {
		end = len(envelopes)
	}

	records := make([]source.Record, 0, end-start)
	for _, env := range envelopes[start:end] {
		records = append(records, envelopeToRecord(env))
	}

	return &source.ListResult{
		Records:    records,
		Page:       page,
		TotalPages: totalPages,
		LastSync:   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// GetEmail fetches the full message for an id of the form "mailbox:uid".
func (a *Adapter) GetEmail(ctx context.Context, id string) (*source.Record, error) {
	mbox, uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	env, body, err := a.store.message(ctx, mbox, uid)
	if err != nil {
		return nil, fmt.Errorf("fetching email detail %s: %w", id, err)
	}

	rec := envelopeToRecord(env)
	rec.Body = body
	return &rec, nil
}

// MarkRead sets \Seen on the message.
func (a *Adapter) MarkRead(ctx context.Context, id string) error {
	mbox, uid, err := parseID(id)
	if err != nil {
		return err
	}
	return a.store.markSeen(ctx, mbox, uid)
}

// Refresh reports how many messages arrived in INBOX since the previous
// call. IMAP servers receive mail on their own, so there is nothing to
// trigger.
func (a *Adapter) Refresh(ctx context.Context) (*source.RefreshResult, error) {
	count, err := a.store.count(ctx, "INBOX")
	if err != nil {
		return nil, fmt.Errorf("checking INBOX: %w", err)
	}

	a.mu.Lock()
	var fresh int
	if a.lastCount > 0 && count > a.lastCount {
		fresh = int(count - a.lastCount)
	}
	a.lastCount = count
	a.mu.Unlock()

	return &source.RefreshResult{
		NewEmailCount: fresh,
		LastSync:      time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Send composes a plain-text message and delivers it over SMTP.
func (a *Adapter) Send(_ context.Context, draft model.Draft) error {
	body, err := composeMessage(a.address, draft, a.smtp.Host)
	if err != nil {
		return fmt.Errorf("composing message: %w", err)
	}

	addr := a.smtp.Host + ":" + a.smtp.Port
	if a.smtp.TLS {
		err = sendSMTPWithTLS(addr, a.smtp, a.address, draft.RecipientAddress, body)
	} else {
		err = sendSMTPWithStartTLS(addr, a.smtp, a.address, draft.RecipientAddress, body)
	}
	if err != nil {
		return fmt.Errorf("sending to %s: %w", draft.RecipientAddress, err)
	}

	a.logger.Info().Str("to", draft.RecipientAddress).Msg("message sent over SMTP")
	return nil
}

// envelopeToRecord maps an envelope to a boundary record. IMAP flags are
// translated into the tag vocabulary the classifier understands.
func envelopeToRecord(env Envelope) source.Record {
	hasSeen := false
	var tags []string
	for _, flag := range env.Flags {
		switch flag {
		case string(imap.FlagSeen):
			hasSeen = true
		case string(imap.FlagFlagged):
			tags = append(tags, model.TagStarred)
		}
	}
	if !hasSeen {
		tags = append(tags, model.TagUnread)
	}

	recipient := ""
	if len(env.To) > 0 {
		recipient = env.To[0]
	}

	sentAt := ""
	if !env.Date.IsZero() {
		sentAt = env.Date.UTC().Format(time.RFC3339)
	}

	return source.Record{
		ID:         formatID(env.Mailbox, env.UID),
		ExternalID: sanitizeID(env.MessageID),
		Sender:     env.From,
		Recipient:  recipient,
		Subject:    env.Subject,
		SentAt:     sentAt,
		Tags:       tags,
	}
}

func formatID(mailbox string, uid uint32) string {
	return mailbox + ":" + strconv.FormatUint(uint64(uid), 10)
}

// parseID splits "mailbox:uid". Mailbox names may contain colons, so the
// last one separates the UID.
func parseID(id string) (string, uint32, error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid email id %q", id)
	}
	uid, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid email UID in %q: %w", id, err)
	}
	return id[:i], uint32(uid), nil
}

// idUnsafeChars matches characters that are not safe in an identifier.
var idUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9@._-]`)

func sanitizeID(s string) string {
	return idUnsafeChars.ReplaceAllString(s, "_")
}

// composeMessage renders a plain-text RFC 5322 message with go-message.
func composeMessage(from string, draft model.Draft, host string) (string, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: draft.RecipientAddress}})
	h.SetSubject(draft.Subject)
	h.SetMessageID(uuid.NewString() + "@" + host)
	h.SetContentType("text/plain", map[string]string{"charset": "UTF-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return "", err
	}
	if _, err := w.Write([]byte(draft.Body)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// smtpSettings holds where and as whom outgoing mail is submitted.
type smtpSettings struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}

// sendSMTPWithTLS sends an email over an implicit TLS connection.
func sendSMTPWithTLS(
	addr string, cfg smtpSettings,
	from, to, body string,
) error {
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("TLS dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	return sendMailViaSMTPClient(client, from, to, body)
}

// sendSMTPWithStartTLS sends an email using STARTTLS.
func sendSMTPWithStartTLS(
	addr string, cfg smtpSettings,
	from, to, body string,
) error {
	conn, err := net.DialTimeout("tcp", addr, source.DefaultTimeout)
	if err != nil {
		return fmt.Errorf("dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: cfg.Host}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("SMTP STARTTLS: %w", err)
	}

	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	return sendMailViaSMTPClient(client, from, to, body)
}

// sendMailViaSMTPClient sends a message using an already-authenticated
// SMTP client.
func sendMailViaSMTPClient(
	client *smtp.Client, from, to, body string,
) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := writer.Write([]byte(body)); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}
