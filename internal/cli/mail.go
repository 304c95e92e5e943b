package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/model"
	appsync "github.com/nhle/mailsync/internal/sync"
)

var (
	listPage    int
	sendTo      string
	sendSubject string
	sendBody    string
)

var listCmd = &cobra.Command{
	Use:   "list [inbox|sent]",
	Short: "Print one page of a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := parseFolder(args)
		if err != nil {
			return err
		}
		if listPage < 1 {
			return fmt.Errorf("--page must be at least 1")
		}
		ctrl, err := newController()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		page, err := ctrl.FetchFolder(ctx, folder, listPage-1, false)
		if err != nil {
			return describe(err)
		}
		printPage(page)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a single message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := newController()
		if err != nil {
			return err
		}
		msg, err := ctrl.Message(cmd.Context(), args[0])
		if err != nil {
			return describe(err)
		}
		printMessage(msg)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [inbox|sent]",
	Short: "Resync with the mail provider and reload a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := parseFolder(args)
		if err != nil {
			return err
		}
		ctrl, err := newController()
		if err != nil {
			return err
		}

		page, err := ctrl.Refresh(cmd.Context(), folder)
		if err != nil {
			return describe(err)
		}
		if !jsonOutput {
			printSuccess("Refreshed %s", folder)
		}
		printPage(page)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a message as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := newController()
		if err != nil {
			return err
		}
		if err := ctrl.MarkRead(cmd.Context(), args[0]); err != nil {
			return describe(err)
		}
		printSuccess("Marked %s as read", args[0])
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message",
	Long:  "Send a message. Pass --body - to read the body from stdin.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := sendBody
		if body == "-" {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading body: %w", err)
			}
			body = string(b)
		}

		ctrl, err := newController()
		if err != nil {
			return err
		}
		if strings.TrimSpace(sendSubject) == "" {
			printWarning("Sending without a subject")
		}

		draft := model.Draft{
			RecipientAddress: strings.TrimSpace(sendTo),
			Subject:          sendSubject,
			Body:             body,
		}
		if err := ctrl.Send(cmd.Context(), draft); err != nil {
			return describe(err)
		}
		printSuccess("Sent to %s", draft.RecipientAddress)
		return nil
	},
}

func init() {
	listCmd.Flags().IntVarP(&listPage, "page", "p", 1, "Page number (1-based)")

	sendCmd.Flags().StringVar(&sendTo, "to", "", "Recipient address")
	sendCmd.Flags().StringVarP(&sendSubject, "subject", "s", "", "Subject line")
	sendCmd.Flags().StringVarP(&sendBody, "body", "b", "", "Message body, or - for stdin")
	_ = sendCmd.MarkFlagRequired("to")
}

// describe adds a next step to errors the user can act on.
func describe(err error) error {
	switch {
	case errors.Is(err, appsync.ErrNotAuthenticated):
		return fmt.Errorf("%w; run `mailsync login` first", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("mail server did not answer in time: %w", err)
	default:
		return err
	}
}
