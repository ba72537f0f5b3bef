package ux

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type readyKeys struct {
	Start key.Binding
	Quit  key.Binding
}

func (k readyKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Quit}
}

func (k readyKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultReadyKeys = readyKeys{
	Start: key.NewBinding(key.WithKeys("enter", "y"), key.WithHelp("enter", "start")),
	Quit:  key.NewBinding(key.WithKeys("q", "n", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// readyModel waits for the user to confirm or abort.
type readyModel struct {
	intro     string
	keys      readyKeys
	help      help.Model
	confirmed bool
	done      bool
}

func newReadyModel(intro string) readyModel {
	h := help.New()
	h.Styles.ShortKey = HeaderStyle
	h.Styles.ShortDesc = HintStyle
	return readyModel{intro: intro, keys: defaultReadyKeys, help: h}
}

func (m readyModel) Init() tea.Cmd {
	return nil
}

func (m readyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Start):
			m.confirmed = true
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Quit):
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m readyModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.intro)
	if !strings.HasSuffix(m.intro, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(TitleStyle.Render("Press enter to start"))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

// AwaitReady shows intro and blocks until the user presses enter (true) or
// quits (false).
func AwaitReady(ctx context.Context, in io.Reader, out io.Writer, intro string) (bool, error) {
	p := tea.NewProgram(
		newReadyModel(intro),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("ready prompt: %w", err)
	}
	m, ok := final.(readyModel)
	if !ok {
		return false, fmt.Errorf("ready prompt: unexpected model %T", final)
	}
	return m.confirmed, nil
}
