package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"minechat/internal/chat"
	"minechat/util"
)

// maxHistory bounds the lines kept on screen.  The transcript file
// holds the full history.
const maxHistory = 2000

var (
	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e0e0e0")).
			Background(lipgloss.Color("#3c3c3c")).
			Padding(0, 1)
	upStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1")).Background(lipgloss.Color("#3c3c3c"))
	downStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Background(lipgloss.Color("#3c3c3c"))
	waitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd75f")).Background(lipgloss.Color("#3c3c3c"))
)

// Messages delivered into the program by the queue pumps.
type (
	inboundMsg string
	statusMsg  chat.Status
)

// model is the bubbletea model: history above, status bar, input line.
type model struct {
	history  viewport.Model
	input    textinput.Model
	outbound func(string)

	lines    []string
	read     chat.ConnState
	write    chat.ConnState
	nickname string

	width int
	ready bool
}

func newModel(outbound func(string)) model {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "type a message and press Enter"
	in.CharLimit = 4000
	in.Focus()

	return model{
		history:  viewport.New(0, 0),
		input:    in,
		outbound: outbound,
		read:     chat.StateClosed,
		write:    chat.StateClosed,
	}
}

func (m model) Init() tea.Cmd { return textinput.Blink }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.history.Width = msg.Width
		// status bar and input line take one row each
		m.history.Height = max(msg.Height-2, 1)
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 1)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if text := strings.TrimSpace(m.input.Value()); text != "" {
				m.outbound(text)
			}
			m.input.Reset()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.history, cmd = m.history.Update(msg)
			return m, cmd
		}

	case inboundMsg:
		m.lines = append(m.lines, strings.TrimRight(string(msg), "\r\n"))
		if len(m.lines) > maxHistory {
			m.lines = m.lines[len(m.lines)-maxHistory:]
		}
		m.refresh()
		return m, nil

	case statusMsg:
		switch msg.Kind {
		case chat.ReadConnection:
			m.read = msg.State
		case chat.WriteConnection:
			m.write = msg.State
		case chat.NicknameReceived:
			m.nickname = msg.Nickname
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refresh() {
	m.history.SetContent(strings.Join(m.lines, "\n"))
	m.history.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "connecting...\n"
	}
	return m.history.View() + "\n" + m.statusBar() + "\n" + m.input.View()
}

func (m model) statusBar() string {
	nick := m.nickname
	if nick == "" {
		nick = "anonymous"
	}
	text := fmt.Sprintf("read %s  write %s  %s",
		stateStyle(m.read).Render(m.read.String()),
		stateStyle(m.write).Render(m.write.String()),
		nick)
	return barStyle.Width(m.width).Render(text)
}

func stateStyle(s chat.ConnState) lipgloss.Style {
	switch s {
	case chat.StateEstablished:
		return upStyle
	case chat.StateInitiated:
		return waitStyle
	default:
		return downStyle
	}
}

// TUI is the interactive terminal display.
type TUI struct {
	ch     *chat.Channels
	logger *util.Logger
	opts   []tea.ProgramOption
}

// NewTUI creates a TUI bound to ch.  opts are passed to the bubbletea
// program; the alternate screen is always used.
func NewTUI(ch *chat.Channels, logger *util.Logger, opts ...tea.ProgramOption) *TUI {
	return &TUI{ch: ch, logger: logger, opts: opts}
}

// Run shows the UI until the user quits or ctx is cancelled.  Both
// return nil.
func (t *TUI) Run(ctx context.Context) error {
	opts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, t.opts...)
	p := tea.NewProgram(newModel(t.ch.Outbound.Push), opts...)

	pumpCtx, stop := context.WithCancel(ctx)
	defer stop()
	go pump(pumpCtx, p, func(ctx context.Context) (tea.Msg, error) {
		line, err := t.ch.Inbound.Pop(ctx)
		return inboundMsg(line), err
	})
	go pump(pumpCtx, p, func(ctx context.Context) (tea.Msg, error) {
		st, err := t.ch.Status.Pop(ctx)
		if err == nil {
			t.logger.Verbose("%s", st)
		}
		return statusMsg(st), err
	})

	_, err := p.Run()
	if ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("terminal UI: %w", err)
	}
	t.logger.Debug("terminal UI closed by user")
	return nil
}

// pump forwards queue items into the program until ctx is done.
func pump(ctx context.Context, p *tea.Program, next func(context.Context) (tea.Msg, error)) {
	for {
		msg, err := next(ctx)
		if err != nil {
			return
		}
		p.Send(msg)
	}
}
