package model

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/logcatotel/pkg/core"
	"github.com/modoterra/logcatotel/pkg/logcat"
	"github.com/modoterra/logcatotel/pkg/transport/uds"
)

// MaxLines is how many records the viewer keeps.
const MaxLines = 500

const reconnectDelay = 2 * time.Second

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneLogs Pane = iota
	PaneDetail
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
)

// App is the root Bubble Tea model.
type App struct {
	// Connection
	client     *uds.Client
	events     chan uds.Message
	socketPath string
	connected  bool

	// State
	lines       []logcat.LogLine
	selectedIdx int
	follow      bool
	paused      bool
	missed      int // records dropped while paused
	minLevel    logcat.Level
	stats       core.Snapshot

	// UI
	activePane Pane
	mode       Mode
	search     textinput.Model
	width      int
	height     int

	statusMsg string
}

// New creates a new TUI app model.
func New(socketPath string) App {
	si := textinput.New()
	si.Placeholder = "tag or message..."
	si.CharLimit = 64

	return App{
		socketPath: socketPath,
		search:     si,
		follow:     true,
		minLevel:   logcat.LevelVerbose,
		activePane: PaneLogs,
		mode:       ModeNormal,
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.socketPath),
		tea.SetWindowTitle("logcatotel"),
	)
}

// connectedMsg indicates successful daemon connection.
type connectedMsg struct {
	client *uds.Client
	events chan uds.Message
}

// disconnectedMsg is sent when the daemon connection drops.
type disconnectedMsg struct{}

// reconnectMsg triggers another dial attempt.
type reconnectMsg struct{}

// lineMsg carries one record pushed by the daemon.
type lineMsg logcat.LogLine

// statsMsg carries ingest counters.
type statsMsg core.Snapshot

// ignoredMsg is an event this viewer does not render.
type ignoredMsg struct{}

// errorMsg carries an error to display.
type errorMsg struct{ err error }

// badEventMsg is an event whose payload did not decode.
type badEventMsg struct{ err error }

func connectCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := uds.Dial(socketPath)
		if err != nil {
			return errorMsg{err}
		}
		events := make(chan uds.Message, 256)
		client.OnEvent(func(m uds.Message) {
			select {
			case events <- m:
			default:
			}
		})
		return connectedMsg{client: client, events: events}
	}
}

func reconnectCmd() tea.Cmd {
	return tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func waitEventCmd(client *uds.Client, events <-chan uds.Message) tea.Cmd {
	return func() tea.Msg {
		select {
		case m := <-events:
			return decodeEvent(m)
		case <-client.Done():
			return disconnectedMsg{}
		}
	}
}

func decodeEvent(m uds.Message) tea.Msg {
	switch m.Method {
	case uds.EventLogcatLine:
		var l logcat.LogLine
		if err := m.UnmarshalData(&l); err != nil {
			return badEventMsg{err}
		}
		return lineMsg(l)
	case uds.EventIngestStats:
		var s core.Snapshot
		if err := m.UnmarshalData(&s); err != nil {
			return badEventMsg{err}
		}
		return statsMsg(s)
	default:
		return ignoredMsg{}
	}
}

func fetchStatusCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodStatus, nil)
		if err != nil {
			return errorMsg{err}
		}
		var s core.Snapshot
		if err := resp.UnmarshalData(&s); err != nil {
			return errorMsg{err}
		}
		return statsMsg(s)
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case connectedMsg:
		a.client = msg.client
		a.events = msg.events
		a.connected = true
		a.statusMsg = "connected"
		return a, tea.Batch(fetchStatusCmd(a.client), waitEventCmd(a.client, a.events))

	case disconnectedMsg:
		a.connected = false
		a.client = nil
		a.statusMsg = "daemon disconnected, retrying"
		return a, reconnectCmd()

	case reconnectMsg:
		return a, connectCmd(a.socketPath)

	case lineMsg:
		a = a.appendLine(logcat.LogLine(msg))
		return a, a.nextEvent()

	case statsMsg:
		a.stats = core.Snapshot(msg)
		return a, a.nextEvent()

	case ignoredMsg:
		return a, a.nextEvent()

	case badEventMsg:
		a.statusMsg = "bad event: " + msg.err.Error()
		return a, a.nextEvent()

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		if !a.connected {
			return a, reconnectCmd()
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) nextEvent() tea.Cmd {
	if a.client == nil {
		return nil
	}
	return waitEventCmd(a.client, a.events)
}

func (a App) appendLine(l logcat.LogLine) App {
	if a.paused {
		a.missed++
		return a
	}
	a.lines = append(a.lines, l)
	if over := len(a.lines) - MaxLines; over > 0 {
		a.lines = a.lines[over:]
		if !a.follow {
			a.selectedIdx = max(0, a.selectedIdx-over)
		}
	}
	if a.follow {
		a.selectedIdx = max(0, len(a.visibleLines())-1)
	}
	return a
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeSearch {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.search.SetValue("")
			a.search.Blur()
			return a.refollow(), nil
		case "enter":
			a.mode = ModeNormal
			a.search.Blur()
			return a.refollow(), nil
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			return a.refollow(), cmd
		}
	}

	switch key := msg.String(); key {
	case "q", "ctrl+c":
		if a.client != nil {
			a.client.Close()
		}
		return a, tea.Quit

	case "j", "down":
		if n := len(a.visibleLines()); n > 0 {
			a.selectedIdx = min(a.selectedIdx+1, n-1)
			a.follow = a.selectedIdx == n-1
		}
	case "k", "up":
		if a.selectedIdx > 0 {
			a.selectedIdx--
			a.follow = false
		}
	case "G", "end":
		a.follow = true
		a = a.refollow()

	case "tab":
		a.activePane = (a.activePane + 1) % 2

	case "/":
		a.mode = ModeSearch
		a.search.Focus()
		return a, textinput.Blink

	case " ":
		a.paused = !a.paused
		if !a.paused && a.missed > 0 {
			a.statusMsg = "resumed"
			a.missed = 0
		}

	case "c":
		a.lines = nil
		a.selectedIdx = 0

	case "v", "d", "i", "w", "e":
		lv, _ := logcat.ParseLevel(strings.ToUpper(key))
		a.minLevel = lv
		a = a.refollow()
	}

	return a, nil
}

// refollow clamps the selection after the visible set changed.
func (a App) refollow() App {
	n := len(a.visibleLines())
	if a.follow || a.selectedIdx >= n {
		a.selectedIdx = max(0, n-1)
	}
	return a
}

// visibleLines applies the level floor and the search query.
func (a App) visibleLines() []logcat.LogLine {
	q := strings.ToLower(a.search.Value())
	floor := a.minLevel.Rank()
	if q == "" && floor <= 0 {
		return a.lines
	}
	var out []logcat.LogLine
	for _, l := range a.lines {
		if l.Level.Rank() < floor {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(l.Tag), q) &&
			!strings.Contains(strings.ToLower(l.Msg), q) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (a App) selectedLine() *logcat.LogLine {
	lines := a.visibleLines()
	if a.selectedIdx < len(lines) {
		return &lines[a.selectedIdx]
	}
	return nil
}
