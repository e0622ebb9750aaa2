package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/matzehuels/psresget/pkg/host"
)

// Prompt styles
var (
	promptSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	promptNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	promptDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// ConfirmModel - Interactive confirmation
// =============================================================================

type choice struct {
	key    string
	label  string
	answer host.Answer
}

var choices = []choice{
	{"y", "Yes", host.Yes},
	{"a", "Yes to All", host.YesToAll},
	{"n", "No", host.No},
	{"l", "No to All", host.NoToAll},
}

// defaultChoice is the index of No.
const defaultChoice = 2

// ConfirmModel is the bubbletea model for a four-way confirmation.
type ConfirmModel struct {
	Title   string
	Message string
	Cursor  int
	Answer  host.Answer
	Done    bool
}

// NewConfirmModel creates a confirmation with No preselected.
func NewConfirmModel(message, title string) ConfirmModel {
	return ConfirmModel{Title: title, Message: message, Cursor: defaultChoice, Answer: host.No}
}

func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc", "q":
		m.Answer, m.Done = host.No, true
		return m, tea.Quit
	case "left", "shift+tab":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "right", "tab":
		if m.Cursor < len(choices)-1 {
			m.Cursor++
		}
	case "enter":
		m.Answer, m.Done = choices[m.Cursor].answer, true
		return m, tea.Quit
	default:
		for i, c := range choices {
			if strings.EqualFold(key.String(), c.key) {
				m.Cursor = i
				m.Answer, m.Done = c.answer, true
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m ConfirmModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString("\n")
	b.WriteString(m.Message)
	b.WriteString("\n\n")

	for i, c := range choices {
		label := fmt.Sprintf("[%s] %s", strings.ToUpper(c.key), c.label)
		if i == m.Cursor {
			b.WriteString(promptSelectedStyle.Render("▸ " + label))
		} else {
			b.WriteString(promptNormalStyle.Render("  " + label))
		}
		b.WriteString("  ")
	}
	b.WriteString("\n")
	b.WriteString(promptDimStyle.Render("←/→ move  ⏎ select  y/a/n/l answer  esc no"))
	b.WriteString("\n")

	return b.String()
}

// =============================================================================
// terminalHost - host.Host on the terminal
// =============================================================================

// terminalHost prompts with [ConfirmModel] when attached to a terminal and
// falls back to reading one answer per line otherwise. Progress is shown as a
// spinner on stderr.
type terminalHost struct {
	in          io.Reader
	lines       *bufio.Reader
	out         io.Writer
	interactive bool

	mu      sync.Mutex
	spinner *Spinner
}

func newTerminalHost() *terminalHost {
	interactive := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stderr.Fd())
	return newTerminalHostWith(os.Stdin, os.Stderr, interactive)
}

func newTerminalHostWith(in io.Reader, out io.Writer, interactive bool) *terminalHost {
	return &terminalHost{in: in, lines: bufio.NewReader(in), out: out, interactive: interactive}
}

func (h *terminalHost) Confirm(message, title string) host.Answer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopSpinner()

	if h.interactive {
		p := tea.NewProgram(NewConfirmModel(message, title), tea.WithInput(h.in), tea.WithOutput(h.out))
		final, err := p.Run()
		if err != nil {
			return host.No
		}
		return final.(ConfirmModel).Answer
	}

	fmt.Fprintf(h.out, "%s\n%s\n[Y] Yes  [A] Yes to All  [N] No  [L] No to All (default is \"N\"): ",
		StyleTitle.Render(title), message)
	line, err := h.lines.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(h.out)
		return host.No
	}
	return host.ParseAnswer(line)
}

func (h *terminalHost) Progress(_ int, label string, percent int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if percent < 0 {
		h.stopSpinner()
		return
	}
	msg := fmt.Sprintf("%s (%d%%)", label, percent)
	if h.spinner == nil {
		h.spinner = newSpinnerTo(h.out, msg)
		h.spinner.Start()
		return
	}
	h.spinner.SetMessage(msg)
}

// stopSpinner must be called with h.mu held.
func (h *terminalHost) stopSpinner() {
	if h.spinner != nil {
		h.spinner.Stop()
		h.spinner = nil
	}
}
