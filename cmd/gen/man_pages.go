package gen

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/sockrpc/internal/meta"
)

var manDir string

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for sockrpc",
	Long: `Generate up-to-date man pages for every sockrpc command. By default
the man page files are written to the "man" directory under the current
directory.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		header := &doc.GenManHeader{
			Section: "1",
			Manual:  "sockrpc Manual",
			Source:  fmt.Sprintf("sockrpc %s", meta.Version),
		}

		dir, err := ensureDir(cmd, manDir)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Generating sockrpc man pages in", dir, "...")

		if err := doc.GenManTree(cmd.Root(), header, dir); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Done.")

		return nil
	},
}

func init() {
	flags := ManPagesCmd.PersistentFlags()

	flags.StringVar(&manDir, "dir", "man/", "the directory to write the man pages.")

	// For bash-completion
	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}
}
