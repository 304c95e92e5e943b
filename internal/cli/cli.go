// Package cli wires configuration, credentials and the sync controller
// into the mailsync command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/app"
	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/pipeline"
	appsync "github.com/nhle/mailsync/internal/sync"
)

// Version is injected at build time via ldflags.
var Version = "dev"

var (
	configPath string
	logLevel   string
	jsonOutput bool

	cfg    *model.AppConfig
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "mailsync",
	Short:         "Terminal mail client with a cached, deduplicated mailbox view",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger = newLogger(cfg.Log, cmd.Name() == viewCmd.Name())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. The terminal UI owns stdout and
// stderr, so under it logs only go to the configured file.
func newLogger(lc model.LogConfig, tui bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			out = f
		}
	} else if tui {
		out = io.Discard
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// newController builds the mailbox from config and keyring and wraps it
// in a sync controller.
func newController() (*appsync.Controller, error) {
	store, err := credential.Open()
	if err != nil {
		return nil, err
	}

	mailbox, err := app.NewMailbox(*cfg, store, logger)
	if err != nil {
		return nil, err
	}

	table := pipeline.CategoryTableFromConfig(cfg.Categories)
	return appsync.New(mailbox,
		appsync.WithLogger(logger),
		appsync.WithClassifier(pipeline.NewClassifier(table, logger, nil)),
		appsync.WithPageSize(cfg.API.PageSize),
		appsync.WithDetailCache(cfg.DetailCacheSize, 10*time.Minute),
	), nil
}

func parseFolder(args []string) (model.Folder, error) {
	if len(args) == 0 {
		return model.FolderInbox, nil
	}
	f := model.Folder(args[0])
	if !f.IsKnown() {
		return "", fmt.Errorf("unknown folder %q (want inbox or sent)", args[0])
	}
	return f, nil
}
