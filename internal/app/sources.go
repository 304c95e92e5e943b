package app

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
	"github.com/nhle/mailsync/internal/source/email"
	"github.com/nhle/mailsync/internal/source/httpapi"
)

// Secrets is the subset of the credential store the mailbox needs.
type Secrets interface {
	Get(key string) (string, error)
}

var _ Secrets = (*credential.Store)(nil)

// NewMailbox builds the mailbox source selected in cfg, loading its
// secret from the keyring.
func NewMailbox(cfg model.AppConfig, secrets Secrets, logger zerolog.Logger) (source.Mailbox, error) {
	switch cfg.Source {
	case model.SourceHTTP, "":
		return newHTTPMailbox(cfg.API, secrets, logger)
	case model.SourceIMAP:
		return newIMAPMailbox(cfg.IMAP, secrets, logger)
	default:
		return nil, fmt.Errorf("unknown mailbox source %q", cfg.Source)
	}
}

func newHTTPMailbox(cfg model.APIConfig, secrets Secrets, logger zerolog.Logger) (source.Mailbox, error) {
	opts := []httpapi.Option{
		httpapi.WithLogger(logger.With().Str("source", "http").Logger()),
	}
	if cfg.TimeoutSec > 0 {
		opts = append(opts, httpapi.WithTimeout(time.Duration(cfg.TimeoutSec)*time.Second))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, httpapi.WithMaxRetries(cfg.MaxRetries))
	}

	// A missing session is not fatal: the API answers /user with
	// authenticated=false and the UI reports it.
	session, err := secrets.Get(credential.KeySessionCookie)
	if err != nil {
		logger.Warn().Err(err).Msg("no stored session, requests will be anonymous")
	} else if session != "" {
		opts = append(opts, httpapi.WithSession(cfg.CookieName, session))
	}

	client, err := httpapi.NewClient(cfg.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating API client: %w", err)
	}
	return httpapi.NewAdapter(client, logger), nil
}

func newIMAPMailbox(cfg model.IMAPConfig, secrets Secrets, logger zerolog.Logger) (source.Mailbox, error) {
	password, err := secrets.Get(credential.KeyIMAPPassword)
	if err != nil {
		return nil, fmt.Errorf("loading IMAP password: %w", err)
	}
	return email.NewAdapter(cfg, password, logger.With().Str("source", "imap").Logger()), nil
}
