package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/umlchat/internal/pipeline"
	"github.com/raphaelgruber/umlchat/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with a stubbed pipeline.
func runCLI(t *testing.T, p *pipeline.Pipeline, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("UMLCHAT_LOG_FILE", filepath.Join(t.TempDir(), "umlchat.log"))
	t.Setenv("UMLCHAT_CONFIG", "")

	orig := buildPipeline
	buildPipeline = func(context.Context) (*pipeline.Pipeline, error) { return p, nil }
	t.Cleanup(func() {
		buildPipeline = orig
		generateType, generateOutput, generateShowDiff = "sequence", "", false
	})

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestGenerate(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "out.svg")
	p := stubPipeline(stubCompleter{response: diagram}, stubRenderer{})

	stdout, stderr, err := runCLI(t, p, "generate", "Alice", "greets", "Bob", "-o", outFile)
	require.NoError(t, err)

	assert.Equal(t, diagram+"\n", stdout)
	assert.Contains(t, stderr, "Wrote "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))
}

func TestGenerateShowDiff(t *testing.T) {
	raw := "@startuml\n[object Object]\nAlice -> Bob\n@enduml"
	p := stubPipeline(stubCompleter{response: raw}, stubRenderer{})

	_, stderr, err := runCLI(t, p, "generate", "x", "--show-diff")
	require.NoError(t, err)
	assert.Contains(t, stderr, "- [object Object]")

	p = stubPipeline(stubCompleter{response: diagram}, stubRenderer{})
	_, stderr, err = runCLI(t, p, "generate", "x", "--show-diff")
	require.NoError(t, err)
	assert.Contains(t, stderr, "cleanup: no changes")
}

func TestGenerateFailures(t *testing.T) {
	p := stubPipeline(stubCompleter{response: diagram}, stubRenderer{err: &render.RenderError{Stderr: "syntax error at line 2"}})
	stdout, _, err := runCLI(t, p, "generate", "x")
	require.Error(t, err)
	assert.Equal(t, "PlantUML Error:\nsyntax error at line 2", err.Error())
	assert.Contains(t, stdout, diagram, "the failing source is still printed")

	_, _, err = runCLI(t, p, "generate", "x", "-t", "venn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown diagram category")
}

func TestTypesAndVersion(t *testing.T) {
	stdout, _, err := runCLI(t, nil, "types")
	require.NoError(t, err)
	assert.Contains(t, stdout, "* sequence")
	assert.Contains(t, stdout, "activity    Activity diagram (legacy syntax)")

	stdout, _, err = runCLI(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, "umlchat "+Version+"\n", stdout)
}
