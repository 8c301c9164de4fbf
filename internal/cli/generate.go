package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/umlchat/internal/conversation"
	"github.com/raphaelgruber/umlchat/internal/pipeline"
	"github.com/raphaelgruber/umlchat/internal/prompt"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
)

var (
	generateType     string
	generateOutput   string
	generateShowDiff bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <description>",
	Short: "Generate a single diagram",
	Long: `Generate one diagram from a description.

The cleaned PlantUML source is printed to stdout. With --output the
rendered image is written to a file as well.

Examples:
  umlchat generate "a user logs in and the server checks the password"
  umlchat generate "orders have many line items" -t class -o orders.svg
  umlchat generate "checkout flow" --show-diff`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateType, "type", "t", prompt.Sequence.Key(), "diagram category (see 'umlchat types')")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "write the rendered image to file")
	generateCmd.Flags().BoolVar(&generateShowDiff, "show-diff", false, "show what cleanup changed in the model output")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	category, err := prompt.ParseCategory(generateType)
	if err != nil {
		return err
	}
	description := strings.Join(args, " ")

	ctx := cmd.Context()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}

	session := conversation.NewSession()
	res := p.Run(ctx, session, description, category)

	if generateShowDiff && res.Raw != "" {
		printDiff(cmd.ErrOrStderr(), res.Raw, res.Source)
	}

	if res.State == pipeline.Failed {
		last, _ := session.Last()
		if res.Source != "" {
			fmt.Fprintln(cmd.OutOrStdout(), res.Source)
		}
		return fmt.Errorf("%s", last.Content)
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Source)

	if generateOutput != "" {
		if err := os.WriteFile(generateOutput, res.Artifact.Data, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d bytes)\n", generateOutput, len(res.Artifact.Data))
	}
	return nil
}

// printDiff shows a line-level diff between the raw completion and the
// cleaned source.
func printDiff(w io.Writer, raw, cleaned string) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(raw, cleaned)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	if len(diffs) == 1 && diffs[0].Type == diffmatchpatch.DiffEqual {
		fmt.Fprintln(w, "cleanup: no changes")
		return
	}

	fmt.Fprintln(w, "cleanup diff (- raw, + cleaned):")
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			fmt.Fprintf(w, "%s%s\n", prefix, line)
		}
	}
}
