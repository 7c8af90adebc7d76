package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// PacketMsg delivers a received datagram to the Monitor
type PacketMsg PacketView

// monitorKeyMap defines key bindings for the live view
type monitorKeyMap struct {
	Clear key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Clear, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Clear, k.Quit}}
}

var defaultMonitorKeys = monitorKeyMap{
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// Monitor is the live view of the listen command: a header, a running count
// and the most recent datagrams.
type Monitor struct {
	header  *Header
	packets []PacketView
	keep    int
	total   int

	spinner spinner.Model
	help    help.Model
	keys    monitorKeyMap

	width  int
	height int
}

// NewMonitor creates a live view keeping the last keep datagrams
func NewMonitor(header *Header, keep int) Monitor {
	if keep <= 0 {
		keep = 50
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = MulticastTagStyle

	width, height := GetTerminalSize()
	return Monitor{
		header:  header,
		keep:    keep,
		spinner: s,
		help:    help.New(),
		keys:    defaultMonitorKeys,
		width:   width,
		height:  height,
	}
}

// Init implements tea.Model
func (m Monitor) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.packets = nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if m.width > MaxContentWidth {
			m.width = MaxContentWidth
		}
		m.help.Width = m.width
		return m, nil

	case PacketMsg:
		m.total++
		m.packets = append(m.packets, PacketView(msg))
		if len(m.packets) > m.keep {
			m.packets = m.packets[len(m.packets)-m.keep:]
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m Monitor) View() string {
	var b strings.Builder
	if m.header != nil {
		b.WriteString(m.header.SetWidth(m.width).Render())
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("%s Listening, %d datagrams received\n\n", m.spinner.View(), m.total))

	// Newest last; drop the oldest blocks that do not fit
	used := strings.Count(b.String(), "\n") + 2
	var blocks []string
	for i := len(m.packets) - 1; i >= 0; i-- {
		block := m.packets[i].Render()
		lines := strings.Count(block, "\n") + 1
		if m.height > 0 && used+lines > m.height {
			break
		}
		used += lines
		blocks = append([]string{block}, blocks...)
	}
	b.WriteString(strings.Join(blocks, "\n"))
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// Total returns the number of datagrams seen since start
func (m Monitor) Total() int {
	return m.total
}

// RunMonitor shows m until the user quits or ctx ends. start is called
// before the view runs with a function producers use to post datagrams.
func RunMonitor(ctx context.Context, m Monitor, start func(post func(PacketView))) error {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	start(func(v PacketView) { p.Send(PacketMsg(v)) })

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
