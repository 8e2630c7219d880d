package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/logspam/logspam/internal/spam"
)

// spamWorkerCmd is the entry point for workers spawned by "spam --processes".
// It is hidden because it only exists to be re-executed by the parent.
var spamWorkerCmd = &cobra.Command{
	Use:    "spam-worker <lines> <length>",
	Hidden: true,
	Args:   cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, err := parseCount(args[0], "lines")
		if err != nil {
			return err
		}
		length, err := parseCount(args[1], "length")
		if err != nil {
			return err
		}

		return spam.RunWorker(cmd.Context(), os.Stdout, GetConfig().Logging, lines, length)
	},
}

func init() {
	rootCmd.AddCommand(spamWorkerCmd)
}
