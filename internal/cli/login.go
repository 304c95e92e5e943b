package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/model"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the session cookie or IMAP password in the system keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credential.Open()
		if err != nil {
			return err
		}

		key, title, desc := credential.KeySessionCookie, "Session cookie",
			fmt.Sprintf("Value of the %q cookie from %s", cfg.API.CookieName, cfg.API.BaseURL)
		if cfg.Source == model.SourceIMAP {
			key, title, desc = credential.KeyIMAPPassword, "IMAP password",
				fmt.Sprintf("Password for %s on %s", cfg.IMAP.Username, cfg.IMAP.Host)
		}

		var secret string
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description(desc).
				EchoMode(huh.EchoModePassword).
				Value(&secret).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("value is required")
					}
					return nil
				}),
		))
		if err := form.Run(); err != nil {
			return err
		}

		if err := store.Set(key, strings.TrimSpace(secret)); err != nil {
			return err
		}
		printSuccess("%s saved", title)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials from the system keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credential.Open()
		if err != nil {
			return err
		}
		for _, key := range []string{credential.KeySessionCookie, credential.KeyIMAPPassword} {
			if err := store.Delete(key); err != nil {
				return err
			}
		}
		printSuccess("Credentials removed")
		return nil
	},
}
