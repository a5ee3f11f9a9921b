package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/julia-runtime/runtime"
	"github.com/wippyai/julia-runtime/value"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#389826")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func replMain() error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return pipeLoop(rt)
	}

	opts, _ := loadOptions()
	m := newReplModel(rt, opts.HistoryFile)
	p := tea.NewProgram(m)
	_, err = p.Run()
	m.saveHistory()
	return err
}

// pipeLoop evaluates stdin line by line when no terminal is attached.
func pipeLoop(rt *runtime.Runtime) error {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := rt.EvalString(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if !v.IsNothing() {
			fmt.Println(v.String())
		}
		v.Drop()
	}
	return sc.Err()
}

type replEntry struct {
	input  string
	output string
	failed bool
}

type replModel struct {
	rt          *runtime.Runtime
	input       textinput.Model
	entries     []replEntry
	history     []string
	histIdx     int
	historyFile string
	pending     string
}

func newReplModel(rt *runtime.Runtime, historyFile string) *replModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render("julia> ")
	ti.Width = 76
	ti.Focus()
	m := &replModel{
		rt:          rt,
		input:       ti,
		historyFile: historyFile,
	}
	m.loadHistory()
	m.histIdx = len(m.history)
	return m
}

func (m *replModel) loadHistory() {
	if m.historyFile == "" {
		return
	}
	b, err := os.ReadFile(m.historyFile)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(b), "\n") {
		if line != "" {
			m.history = append(m.history, line)
		}
	}
}

func (m *replModel) saveHistory() {
	if m.historyFile == "" || len(m.history) == 0 {
		return
	}
	const keep = 500
	h := m.history
	if len(h) > keep {
		h = h[len(h)-keep:]
	}
	_ = os.WriteFile(m.historyFile, []byte(strings.Join(h, "\n")+"\n"), 0o644)
}

type evalMsg struct {
	entry replEntry
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) evaluate(src string) tea.Cmd {
	return func() tea.Msg {
		v, err := m.rt.EvalString(src)
		if err != nil {
			return evalMsg{entry: replEntry{input: src, output: renderError(err), failed: true}}
		}
		out := ""
		if !v.IsNothing() {
			out = v.String()
		}
		v.Drop()
		return evalMsg{entry: replEntry{input: src, output: out}}
	}
}

func renderError(err error) string {
	var ex *value.Exception
	if errors.As(err, &ex) {
		if ex.Message != "" {
			return fmt.Sprintf("ERROR: %s: %s", ex.TypeName, ex.Message)
		}
		return "ERROR: " + ex.TypeName
	}
	return "ERROR: " + err.Error()
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" {
				return m, nil
			}
			if src == "exit" || src == "quit" {
				return m, tea.Quit
			}
			m.history = append(m.history, src)
			m.histIdx = len(m.history)
			m.input.SetValue("")
			return m, m.evaluate(src)

		case "up":
			if m.histIdx > 0 {
				if m.histIdx == len(m.history) {
					m.pending = m.input.Value()
				}
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.histIdx < len(m.history) {
				m.histIdx++
				if m.histIdx == len(m.history) {
					m.input.SetValue(m.pending)
				} else {
					m.input.SetValue(m.history[m.histIdx])
				}
				m.input.CursorEnd()
			}
			return m, nil
		}

	case evalMsg:
		m.entries = append(m.entries, msg.entry)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(bannerStyle.Render("jul"))
	b.WriteString(" ")
	b.WriteString(hintStyle.Render(m.rt.Version().String()))
	b.WriteString("\n\n")

	const visible = 20
	entries := m.entries
	if len(entries) > visible {
		entries = entries[len(entries)-visible:]
	}
	for _, e := range entries {
		b.WriteString(promptStyle.Render("julia> "))
		b.WriteString(e.input)
		b.WriteString("\n")
		if e.output != "" {
			if e.failed {
				b.WriteString(errStyle.Render(e.output))
			} else {
				b.WriteString(resultStyle.Render(e.output))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("↑/↓ history • enter eval • ctrl+d quit"))
	b.WriteString("\n")
	return b.String()
}
