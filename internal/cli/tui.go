package cli

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/umlchat/internal/pipeline"
	"github.com/raphaelgruber/umlchat/internal/prompt"
	"github.com/raphaelgruber/umlchat/internal/render"
)

// Theme holds the color scheme for the chat display.
type Theme struct {
	User      lipgloss.Color
	Assistant lipgloss.Color
	Status    lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Hint      lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	User:      lipgloss.Color("#D7AF5F"), // sand
	Assistant: lipgloss.Color("#5FAFD7"), // light blue
	Status:    lipgloss.Color("#5FAFD7"),
	Success:   lipgloss.Color("#00D787"), // green
	Error:     lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) bubbleStyle(c lipgloss.Color, width int) lipgloss.Style {
	s := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(c).
		Padding(0, 1)
	if width > 4 {
		s = s.MaxWidth(width)
	}
	return s
}

func (t Theme) roleStyle(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// maxVisibleMessages bounds how much history is drawn.
const maxVisibleMessages = 6

// chatMessage is one rendered bubble.
type chatMessage struct {
	user   bool
	text   string
	failed bool
}

// stateMsg carries a pipeline state change. next waits for the message
// after it, so Update sees states and the final result in order.
type stateMsg struct {
	state pipeline.State
	next  tea.Cmd
}

// turnDoneMsg carries the finished turn.
type turnDoneMsg struct {
	res turnResult
	err error
}

// chatModel is the bubbletea model for the chat screen.
type chatModel struct {
	ctx      context.Context
	turns    turnFunc
	category prompt.Category
	input    textinput.Model
	spinner  spinner.Model
	theme    Theme
	messages []chatMessage
	busy     bool
	state    pipeline.State
	artifact *render.Artifact
	notice   string
	width    int
	quitting bool
}

// newChatModel creates a chat model.
func newChatModel(ctx context.Context, turns turnFunc, category prompt.Category) chatModel {
	input := textinput.New()
	input.Placeholder = "Describe a diagram..."
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	return chatModel{
		ctx:      ctx,
		turns:    turns,
		category: category,
		input:    input,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		theme:    defaultTheme,
	}
}

// Init returns the initial command.
func (m chatModel) Init() tea.Cmd {
	return nil
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			if !m.busy {
				m.category = m.category.Next()
			}
			return m, nil
		case "ctrl+s":
			name, err := saveArtifact(m.artifact)
			if err != nil {
				m.notice = m.theme.errorStyle().Render(err.Error())
			} else {
				m.notice = m.theme.completedStyle().Render("✓ Saved " + name)
			}
			return m, nil
		case "enter":
			if m.busy {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.messages = append(m.messages, chatMessage{user: true, text: text})
			m.busy = true
			m.notice = ""
			m.state = pipeline.Prompting
			return m, tea.Batch(m.startTurn(text), m.spinner.Tick)
		}

	case stateMsg:
		if !m.busy {
			return m, nil
		}
		m.state = msg.state
		return m, msg.next

	case turnDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.state = pipeline.Failed
			m.messages = append(m.messages, chatMessage{text: "Error: " + msg.err.Error(), failed: true})
			return m, nil
		}
		m.state = msg.res.State
		m.messages = append(m.messages, chatMessage{text: msg.res.Reply, failed: msg.res.State == pipeline.Failed})
		if msg.res.State == pipeline.Done {
			m.artifact = msg.res.Artifact
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// startTurn runs the turn in a goroutine and streams its states back
// through the program.
func (m chatModel) startTurn(text string) tea.Cmd {
	states := make(chan pipeline.State, 8)
	done := make(chan turnDoneMsg, 1)
	go func() {
		res, err := m.turns(m.ctx, text, m.category, func(s pipeline.State) {
			if !s.Terminal() {
				states <- s
			}
		})
		close(states)
		done <- turnDoneMsg{res: res, err: err}
	}()
	return waitForTurn(states, done)
}

// waitForTurn delivers the next state, or the result once states is drained.
func waitForTurn(states <-chan pipeline.State, done <-chan turnDoneMsg) tea.Cmd {
	return func() tea.Msg {
		if s, ok := <-states; ok {
			return stateMsg{state: s, next: waitForTurn(states, done)}
		}
		return <-done
	}
}

// View renders the chat screen.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m chatModel) renderContent() string {
	if m.quitting {
		return m.theme.hintStyle().Render("Bye.") + "\n"
	}

	var b strings.Builder
	b.WriteString(m.theme.roleStyle(m.theme.Assistant).Render("umlchat"))
	b.WriteString(m.theme.hintStyle().Render(fmt.Sprintf("  %s  (tab to change)", m.category)))
	b.WriteString("\n\n")

	start := max(0, len(m.messages)-maxVisibleMessages)
	for _, msg := range m.messages[start:] {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.theme.hintStyle().Render("enter send • tab category • ctrl+s save • esc quit"))
	b.WriteString("\n")
	return b.String()
}

func (m chatModel) renderMessage(msg chatMessage) string {
	color, label := m.theme.Assistant, "assistant"
	if msg.user {
		color, label = m.theme.User, "you"
	}
	if msg.failed {
		color = m.theme.Error
	}
	return m.theme.roleStyle(color).Render(label) + "\n" +
		m.theme.bubbleStyle(color, m.width).Render(msg.text)
}

func (m chatModel) statusLine() string {
	switch {
	case m.busy:
		return m.spinner.View() + " " + m.theme.statusStyle().Render(m.state.String()+"...")
	case m.notice != "":
		return m.notice
	case m.state == pipeline.Failed:
		return m.theme.errorStyle().Render("✗ turn failed")
	case m.state == pipeline.Done && m.artifact != nil:
		return m.theme.completedStyle().Render(fmt.Sprintf("✓ rendered %s (%d bytes)", m.artifact.Format, len(m.artifact.Data)))
	default:
		return ""
	}
}

// runChatUI runs the interactive chat until the user quits.
func runChatUI(ctx context.Context, turns turnFunc, category prompt.Category) error {
	p := tea.NewProgram(newChatModel(ctx, turns, category), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
