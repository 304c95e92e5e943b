package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// Mailbox source kinds.
const (
	SourceHTTP = "http"
	SourceIMAP = "imap"
)

// APIConfig holds settings for the HTTP mail API.
type APIConfig struct {
	// BaseURL is the root URL of the mail API (e.g., http://localhost:8080/api).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// PageSize is the number of messages requested per page.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// CookieName is the name of the session cookie the API issues.
	CookieName string `mapstructure:"cookie_name" yaml:"cookie_name"`
}

// IMAPConfig holds settings for reading mail directly over IMAP and
// sending over SMTP. The password lives in the system keyring.
type IMAPConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        string `mapstructure:"port" yaml:"port"`
	SMTPHost    string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort    string `mapstructure:"smtp_port" yaml:"smtp_port"`
	Username    string `mapstructure:"username" yaml:"username"`
	TLS         bool   `mapstructure:"tls" yaml:"tls"`
	SentMailbox string `mapstructure:"sent_mailbox" yaml:"sent_mailbox"`

	// Address is the mailbox owner's email address. Empty means Username.
	Address string `mapstructure:"address" yaml:"address"`

	// Limit caps how many of the most recent messages are listed per mailbox.
	Limit int `mapstructure:"limit" yaml:"limit"`
}

// FromAddress returns the address messages are sent from and partitioned
// by.
func (c IMAPConfig) FromAddress() string {
	if a := strings.TrimSpace(c.Address); a != "" {
		return a
	}
	return c.Username
}

// CategoryConfig maps one classification tag to a category name and the
// color the UI renders it with. Order in the config is priority order.
type CategoryConfig struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Tag   string `mapstructure:"tag" yaml:"tag"`
	Color string `mapstructure:"color" yaml:"color"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// Source selects the mailbox backend ("http" or "imap").
	Source     string           `mapstructure:"source" yaml:"source"`
	API        APIConfig        `mapstructure:"api" yaml:"api"`
	IMAP       IMAPConfig       `mapstructure:"imap" yaml:"imap"`
	Categories []CategoryConfig `mapstructure:"categories" yaml:"categories"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`

	// DetailCacheSize bounds the number of message bodies kept in memory.
	DetailCacheSize int `mapstructure:"detail_cache_size" yaml:"detail_cache_size"`
}

// DefaultCategories is the built-in category priority order.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Name: "personal", Tag: "CATEGORY_PERSONAL", Color: "#5B9BD5"},
		{Name: "social", Tag: "CATEGORY_SOCIAL", Color: "#CC5DE8"},
		{Name: "updates", Tag: "CATEGORY_UPDATES", Color: "#FFD93D"},
		{Name: "forums", Tag: "CATEGORY_FORUMS", Color: "#6BCB77"},
		{Name: "promotions", Tag: "CATEGORY_PROMOTIONS", Color: "#FFA94D"},
	}
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsync", "config.yaml")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Source: SourceHTTP,
		API: APIConfig{
			BaseURL:    "http://localhost:8080/api",
			PageSize:   20,
			TimeoutSec: 30,
			MaxRetries: 3,
			CookieName: "session",
		},
		IMAP: IMAPConfig{
			Port:        "993",
			SMTPPort:    "465",
			TLS:         true,
			SentMailbox: "Sent",
			Limit:       200,
		},
		Categories:      DefaultCategories(),
		Log:             LogConfig{Level: "info"},
		DetailCacheSize: 256,
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Environment overrides, e.g. MAILSYNC_API_BASE_URL.
	v.SetEnvPrefix("mailsync")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	def := DefaultAppConfig()
	v.SetDefault("source", def.Source)
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.page_size", def.API.PageSize)
	v.SetDefault("api.timeout_sec", def.API.TimeoutSec)
	v.SetDefault("api.max_retries", def.API.MaxRetries)
	v.SetDefault("api.cookie_name", def.API.CookieName)
	v.SetDefault("imap.port", def.IMAP.Port)
	v.SetDefault("imap.smtp_port", def.IMAP.SMTPPort)
	v.SetDefault("imap.tls", def.IMAP.TLS)
	v.SetDefault("imap.sent_mailbox", def.IMAP.SentMailbox)
	v.SetDefault("imap.limit", def.IMAP.Limit)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("detail_cache_size", def.DetailCacheSize)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultAppConfig()
	// Unmarshal merges into the defaults; an explicit list replaces them.
	cfg.Categories = nil
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *AppConfig) Validate() error {
	switch c.Source {
	case SourceHTTP:
		if c.API.BaseURL == "" {
			return fmt.Errorf("api.base_url is required for source %q", c.Source)
		}
	case SourceIMAP:
		if c.IMAP.Host == "" || c.IMAP.Username == "" {
			return fmt.Errorf("imap.host and imap.username are required for source %q", c.Source)
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}

	seen := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.Name == "" || cat.Tag == "" {
			return fmt.Errorf("categories[%d]: name and tag are required", i)
		}
		if seen[cat.Tag] {
			return fmt.Errorf("categories[%d]: duplicate tag %q", i, cat.Tag)
		}
		seen[cat.Tag] = true
	}

	if c.API.PageSize <= 0 {
		c.API.PageSize = 20
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("source", cfg.Source)
	v.Set("api", cfg.API)
	v.Set("imap", cfg.IMAP)
	v.Set("categories", cfg.Categories)
	v.Set("log", cfg.Log)
	v.Set("detail_cache_size", cfg.DetailCacheSize)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
