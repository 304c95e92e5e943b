package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/app"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Open the interactive mailbox",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := newController()
		if err != nil {
			return err
		}
		_, err = tea.NewProgram(app.New(ctrl), tea.WithAltScreen()).Run()
		return err
	},
}
