package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/coopdoor/internal/door"
	"github.com/muurk/coopdoor/internal/link"
)

const (
	watchRefresh = 200 * time.Millisecond
	maxEvents    = 8
)

// Door is the controller surface the watch dashboard drives
type Door interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Status() door.Status
	Name() string
}

// WatchConfig configures the watch dashboard
type WatchConfig struct {
	Door Door

	// Pending reports the command in flight on the radio link, if any.
	// It drives the attempt counter and may be nil.
	Pending     func() (link.Session, bool)
	MaxAttempts int

	// Context bounds every command started from the dashboard
	Context context.Context
}

type refreshMsg time.Time

type commandDoneMsg struct {
	target door.State
	err    error
}

type watchEvent struct {
	at   time.Time
	text string
	bad  bool
}

type watchKeyMap struct {
	Open  key.Binding
	Close key.Binding
	Help  key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Close, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Open, k.Close},
		{k.Help, k.Quit},
	}
}

// WatchModel is an interactive dashboard showing the door state, the
// command in flight and recent events
type WatchModel struct {
	cfg WatchConfig

	status  door.Status
	session link.Session
	sending bool

	busy   bool
	target door.State
	events []watchEvent

	width    int
	spinner  spinner.Model
	attempts progress.Model
	help     help.Model
	keys     watchKeyMap
}

// NewWatchModel creates the dashboard for cfg.Door
func NewWatchModel(cfg WatchConfig) WatchModel {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = link.DefaultMaxAttempts
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return WatchModel{
		cfg:      cfg,
		status:   cfg.Door.Status(),
		width:    GetTerminalWidth(),
		spinner:  s,
		attempts: progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
		help:     help.New(),
		keys: watchKeyMap{
			Open: key.NewBinding(
				key.WithKeys("o"),
				key.WithHelp("o", "open"),
			),
			Close: key.NewBinding(
				key.WithKeys("c"),
				key.WithHelp("c", "close"),
			),
			Help: key.NewBinding(
				key.WithKeys("?"),
				key.WithHelp("?", "help"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refresh())
}

func refresh() tea.Cmd {
	return tea.Tick(watchRefresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case refreshMsg:
		m.poll()
		return m, refresh()

	case commandDoneMsg:
		m.busy = false
		m.poll()
		if msg.err != nil {
			m.log(true, fmt.Sprintf("%s failed: %v", verb(msg.target), msg.err))
		} else {
			m.log(false, fmt.Sprintf("Door %s", msg.target))
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m WatchModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Open):
		return m.start(door.Open)
	case key.Matches(msg, m.keys.Close):
		return m.start(door.Closed)
	}
	return m, nil
}

// start runs a door command in the background. Only one command may be in
// flight, matching the controller.
func (m WatchModel) start(target door.State) (tea.Model, tea.Cmd) {
	if m.busy {
		m.log(true, fmt.Sprintf("Busy, ignoring %s", strings.ToLower(verb(target))))
		return m, nil
	}
	m.busy = true
	m.target = target
	m.log(false, verb(target)+" requested")

	d, ctx := m.cfg.Door, m.cfg.Context
	return m, func() tea.Msg {
		var err error
		if target == door.Open {
			err = d.Open(ctx)
		} else {
			err = d.Close(ctx)
		}
		return commandDoneMsg{target: target, err: err}
	}
}

// poll refreshes the cached door status and link session, logging state
// changes as events
func (m *WatchModel) poll() {
	st := m.cfg.Door.Status()
	if st.State != m.status.State || st.Unconfirmed != m.status.Unconfirmed {
		label := st.State.String()
		if st.Unconfirmed {
			label += " (unconfirmed)"
		}
		m.log(st.Unconfirmed, "State: "+label)
	}
	m.status = st

	m.sending = false
	if m.cfg.Pending != nil {
		m.session, m.sending = m.cfg.Pending()
	}
}

func (m *WatchModel) log(bad bool, text string) {
	m.events = append(m.events, watchEvent{at: time.Now(), text: text, bad: bad})
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func verb(target door.State) string {
	if target == door.Open {
		return "Open"
	}
	return "Close"
}

func moving(target door.State) string {
	if target == door.Open {
		return door.Opening.String()
	}
	return door.Closing.String()
}

// View implements tea.Model
func (m WatchModel) View() string {
	width := m.width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	var b strings.Builder

	b.WriteString(NewHeader("Coop door", m.cfg.Door.Name()).SetWidth(width).Render())
	b.WriteString("\n\n")

	b.WriteString(HeaderParamKeyStyle.Render("State:") + " " + StateLabel(m.status))
	b.WriteString("\n")
	if m.status.LastError != "" {
		b.WriteString(HeaderParamKeyStyle.Render("Last error:") + " " + ErrorMessageStyle.Render(m.status.LastError))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.busy {
		line := fmt.Sprintf("%s %s", m.spinner.View(), moving(m.target))
		if m.sending {
			line += fmt.Sprintf("  seq %d  attempt %d/%d  %s",
				m.session.Command.Seq,
				m.session.Attempts,
				m.cfg.MaxAttempts,
				m.attempts.ViewAs(float64(m.session.Attempts)/float64(m.cfg.MaxAttempts)),
			)
		}
		b.WriteString("  " + line + "\n\n")
	}

	for _, e := range m.events {
		text := ResultValueStyle.Render(e.text)
		if e.bad {
			text = ErrorMessageStyle.Render(e.text)
		}
		b.WriteString("  " + EventTimeStyle.Render(e.at.Format("15:04:05")) + "  " + text + "\n")
	}
	if len(m.events) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(m.help.View(m.keys)))
	b.WriteString("\n")

	return b.String()
}

// RunWatch runs the dashboard until the user quits
func RunWatch(cfg WatchConfig, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(NewWatchModel(cfg), opts...).Run()
	return err
}
