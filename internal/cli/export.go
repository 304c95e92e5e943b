package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/export"
)

var (
	exportOut      string
	exportMaxPages int
	exportBodies   bool
)

var exportCmd = &cobra.Command{
	Use:   "export [inbox|sent]",
	Short: "Write a folder to an mbox file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := parseFolder(args)
		if err != nil {
			return err
		}
		if exportOut == "" {
			exportOut = string(folder) + ".mbox"
		}

		ctrl, err := newController()
		if err != nil {
			return err
		}

		f, err := os.OpenFile(exportOut, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("creating %s: %w", exportOut, err)
		}
		defer f.Close()

		res, err := export.Mbox(cmd.Context(), ctrl, f, export.Options{
			Folder:   folder,
			MaxPages: exportMaxPages,
			Bodies:   exportBodies,
		}, logger)
		if err != nil {
			return describe(err)
		}

		if printJSON(res) {
			return nil
		}
		printSuccess("Exported %d messages from %d pages to %s", res.Messages, res.Pages, exportOut)
		if res.Skipped > 0 {
			printWarning(fmt.Sprintf("%d messages were written without their full body", res.Skipped))
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default <folder>.mbox)")
	exportCmd.Flags().IntVar(&exportMaxPages, "max-pages", 0, "Stop after this many pages (0 for all)")
	exportCmd.Flags().BoolVar(&exportBodies, "bodies", true, "Fetch full message bodies")
}
