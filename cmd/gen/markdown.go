package gen

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var markdownDir string

var MarkdownCmd = &cobra.Command{
	Use:   "markdown",
	Short: "Generate markdown reference docs for sockrpc",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := ensureDir(cmd, markdownDir)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Generating sockrpc markdown docs in", dir, "...")

		return doc.GenMarkdownTree(cmd.Root(), dir)
	},
}

func init() {
	MarkdownCmd.PersistentFlags().StringVar(&markdownDir, "dir", "docs/", "the directory to write the markdown files.")
}
