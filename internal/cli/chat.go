package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/umlchat/internal/client"
	"github.com/raphaelgruber/umlchat/internal/conversation"
	"github.com/raphaelgruber/umlchat/internal/pipeline"
	"github.com/raphaelgruber/umlchat/internal/prompt"
	"github.com/raphaelgruber/umlchat/internal/render"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatType   string
	chatServer string
	chatPlain  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive diagram conversation",
	Long: `Start an interactive conversation. Every message produces a diagram.

On a terminal this opens a full-screen chat: Tab cycles the diagram
category, Ctrl+S saves the latest diagram, Esc or Ctrl+C quits.
When stdin is not a terminal, one message is read per line.

Line commands:
  /type <category>  switch the diagram category
  /stats            show timing and token statistics
  /quit             leave

Examples:
  umlchat chat
  umlchat chat -t class
  umlchat chat --server http://localhost:8485
  echo "a cat chases a mouse" | umlchat chat`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatType, "type", "t", prompt.Sequence.Key(), "initial diagram category")
	chatCmd.Flags().StringVar(&chatServer, "server", "", "talk to a running umlchat-server instead of calling the model directly")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "use the line interface even on a terminal")
}

// turnResult is what the chat views need from one turn.
type turnResult struct {
	State    pipeline.State
	Source   string
	Artifact *render.Artifact
	// Reply is the assistant turn text.
	Reply string
}

// turnFunc runs one turn, reporting intermediate states to onState.
type turnFunc func(ctx context.Context, text string, category prompt.Category, onState func(pipeline.State)) (turnResult, error)

// localTurns runs turns in-process against one session.
func localTurns(p *pipeline.Pipeline, session *conversation.Session) turnFunc {
	return func(ctx context.Context, text string, category prompt.Category, onState func(pipeline.State)) (turnResult, error) {
		run := *p
		run.Observer = onState
		res := run.Run(ctx, session, text, category)
		last, _ := session.Last()
		return turnResult{State: res.State, Source: res.Source, Artifact: res.Artifact, Reply: last.Content}, nil
	}
}

// remoteTurns runs turns on a server over one websocket chat.
func remoteTurns(chat *client.Chat) turnFunc {
	return func(ctx context.Context, text string, category prompt.Category, onState func(pipeline.State)) (turnResult, error) {
		reply, err := chat.Send(ctx, text, category.Key(), func(state string) {
			if s, ok := pipeline.ParseState(state); ok && onState != nil {
				onState(s)
			}
		})
		if err != nil {
			return turnResult{}, err
		}

		state, _ := pipeline.ParseState(reply.State)
		res := turnResult{State: state, Source: reply.Source, Reply: reply.Error}
		if state == pipeline.Done {
			res.Reply = reply.Source
			res.Artifact = &render.Artifact{Format: render.Format(reply.Format), Data: reply.Artifact}
		}
		return res, nil
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	category, err := prompt.ParseCategory(chatType)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var turns turnFunc
	if chatServer != "" {
		chat, err := client.New(chatServer).Connect(ctx)
		if err != nil {
			return err
		}
		defer chat.Close()
		turns = remoteTurns(chat)
	} else {
		p, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		session := conversation.NewSession()
		logger.Info("chat session started", "session", session.ID)
		turns = localTurns(p, session)
	}

	if !chatPlain && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		return runChatUI(ctx, turns, category)
	}
	return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), turns, category)
}

// runREPL reads one message per line and prints each reply.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, turns turnFunc, category prompt.Category) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprintf(out, "[%s] > ", category.Key())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := replCommand(out, line, &category)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := turns(ctx, line, category, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Reply)
		if res.State == pipeline.Done && res.Artifact != nil && res.Artifact.Path != "" {
			fmt.Fprintf(out, "(rendered to %s)\n", res.Artifact.Path)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func replCommand(out io.Writer, line string, category *prompt.Category) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/stats":
		printLocalStats(out, collector.Snapshot())
	case "/type":
		if strings.TrimSpace(arg) == "" {
			fmt.Fprintf(out, "category: %s\n", category)
			return false, nil
		}
		c, err := prompt.ParseCategory(arg)
		if err != nil {
			return false, err
		}
		*category = c
		fmt.Fprintf(out, "category: %s\n", c)
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

// saveArtifact writes a to diagram.<format> in the current directory.
func saveArtifact(a *render.Artifact) (string, error) {
	if a == nil || len(a.Data) == 0 {
		return "", fmt.Errorf("no diagram to save")
	}
	name := "diagram." + string(a.Format)
	if err := os.WriteFile(name, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("save diagram: %w", err)
	}
	return name, nil
}

