package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultAppConfig(), cfg)
}

func TestLoadConfig_IMAP(t *testing.T) {
	path := writeConfig(t, `
source: imap
imap:
  host: imap.example.com
  username: jdoe
  address: jdoe@example.com
categories:
  - name: work
    tag: LABEL_WORK
    color: "#ffffff"
log:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, SourceIMAP, cfg.Source)
	assert.Equal(t, "imap.example.com", cfg.IMAP.Host)
	assert.Equal(t, "jdoe@example.com", cfg.IMAP.FromAddress())
	assert.Equal(t, "993", cfg.IMAP.Port, "unset keys keep their defaults")
	assert.Equal(t, "Sent", cfg.IMAP.SentMailbox)
	assert.Equal(t, []CategoryConfig{{Name: "work", Tag: "LABEL_WORK", Color: "#ffffff"}}, cfg.Categories)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 20, cfg.API.PageSize)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("MAILSYNC_API_BASE_URL", "https://mail.example.com/api")
	path := writeConfig(t, "source: http\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://mail.example.com/api", cfg.API.BaseURL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown source":    "source: pop3\n",
		"imap without host": "source: imap\nimap:\n  username: me@example.com\n",
		"duplicate tag": `
categories:
  - {name: a, tag: X}
  - {name: b, tag: X}
`,
		"category without tag": "categories:\n  - {name: a}\n",
		"malformed yaml":       "source: [\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestIMAPConfig_FromAddress(t *testing.T) {
	assert.Equal(t, "me@example.com", IMAPConfig{Username: "me@example.com"}.FromAddress())
	assert.Equal(t, "jdoe@example.com", IMAPConfig{Username: "jdoe", Address: " jdoe@example.com "}.FromAddress())
}

func TestFolderIsKnown(t *testing.T) {
	assert.True(t, FolderInbox.IsKnown())
	assert.True(t, FolderSent.IsKnown())
	assert.False(t, Folder("archive").IsKnown())
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "ext", Message{ID: "1", ExternalID: "ext"}.Key())
	assert.Equal(t, "1", Message{ID: "1"}.Key())
}
