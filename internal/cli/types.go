package cli

import (
	"fmt"

	"github.com/raphaelgruber/umlchat/internal/prompt"
	"github.com/spf13/cobra"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List diagram categories",
	Long: `List the diagram categories accepted by --type.

Either the key or the full label may be passed, in any case.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, c := range prompt.Categories() {
			marker := " "
			if c == prompt.Sequence {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-11s %s\n", marker, c.Key(), c)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "umlchat %s\n", Version)
	},
}
