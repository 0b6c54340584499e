package sink

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"contourtrack/internal/config"
	"contourtrack/internal/grid"
	"contourtrack/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// reportMsg updates the mote table.
type reportMsg struct{ telemetry.ReportRow }

// stateMsg carries the settings broadcast with the latest beacon.
type stateMsg struct{ telemetry.StationStateRow }

// snapshotMsg carries the latest classified grid.
type snapshotMsg struct{ grid.Snapshot }

// adminMsg reports admin UI status.
type adminMsg struct{ active bool }

type setThresholdMsg struct{ fn func(int) error }

const (
	maxLogLines   = 500
	thresholdStep = 50
)

// TUIWriter renders the field with a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Leaving
// the UI interrupts the process unless Close was called first.
func NewTUIWriter(cfg *config.StationConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements Writer.
func (w *TUIWriter) Write(row telemetry.ReportRow) error {
	line := fmt.Sprintf("%s mote=%d v=%d count=%d readings=%v",
		row.Timestamp.Format(time.TimeOnly), row.MoteID, row.Version, row.Count, row.Readings)
	if row.FTSP != nil {
		line += fmt.Sprintf(" ftsp(root=%d synced=%t)", row.FTSP.RootID, row.FTSP.Synced)
	}
	w.program.Send(reportMsg{row})
	w.program.Send(logMsg{line: line})
	return nil
}

// WriteBatch writes multiple report rows.
func (w *TUIWriter) WriteBatch(rows []telemetry.ReportRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteEvent logs a contour event.
func (w *TUIWriter) WriteEvent(e telemetry.ContourEventRow) error {
	w.program.Send(logMsg{line: fmt.Sprintf("%s CONTOUR %s regions=%d->%d motes=%v",
		e.Timestamp.Format(time.TimeOnly), e.Kind, e.PrevBlobs, e.Blobs, e.MoteIDs)})
	return nil
}

// WriteState updates the status line.
func (w *TUIWriter) WriteState(s telemetry.StationStateRow) error {
	w.program.Send(stateMsg{s})
	return nil
}

// WriteSnapshot redraws the grid.
func (w *TUIWriter) WriteSnapshot(s grid.Snapshot) error {
	w.program.Send(snapshotMsg{s})
	return nil
}

// SetAdminStatus shows whether the admin server is up.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// SetThresholdFunc lets the +/- keys change the contour threshold.
func (w *TUIWriter) SetThresholdFunc(fn func(int) error) {
	w.program.Send(setThresholdMsg{fn: fn})
}

func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type moteRow struct {
	latest   uint16
	max      uint16
	count    uint16
	version  uint16
	lastSeen time.Time
}

type tuiModel struct {
	cfg          *config.StationConfig
	table        table.Model
	vp           viewport.Model
	logs         []string
	motes        map[uint16]*moteRow
	snapshot     grid.Snapshot
	state        telemetry.StationStateRow
	setThreshold func(int) error
	admin        bool
	wrap         bool
	autoscroll   bool
	help         bool
	header       string
	height       int
}

func newTUIModel(cfg *config.StationConfig) tuiModel {
	cols := []table.Column{
		{Title: "Mote", Width: 5},
		{Title: "Latest", Width: 7},
		{Title: "Max", Width: 7},
		{Title: "Count", Width: 6},
		{Title: "Ver", Width: 5},
		{Title: "Seen", Width: 9},
	}
	m := tuiModel{
		cfg:        cfg,
		table:      table.New(table.WithColumns(cols), table.WithHeight(grid.MaxMotes/2+1)),
		vp:         viewport.New(0, 0),
		motes:      make(map[uint16]*moteRow),
		autoscroll: true,
	}
	if cfg != nil {
		m.state.StationID = cfg.StationID
		m.state.Version = -1
		m.state.Interval = cfg.Sampling.Interval
		m.state.Threshold = cfg.Sampling.Threshold
	}
	m.header = m.renderHeader()
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width / 2)
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.header = m.renderHeader()
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		case "?", "h":
			m.help = true
		case "+", "=":
			m.adjustThreshold(thresholdStep)
		case "-":
			m.adjustThreshold(-thresholdStep)
		default:
			if !m.autoscroll {
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case reportMsg:
		r, ok := m.motes[msg.MoteID]
		if !ok {
			r = &moteRow{}
			m.motes[msg.MoteID] = r
		}
		r.count, r.version, r.lastSeen = msg.Count, msg.Version, msg.Timestamp
		for _, v := range msg.Readings {
			r.latest = v
			r.max = max(r.max, v)
		}
		m.table.SetRows(m.tableRows())
		m.header = m.renderHeader()
		m.updateViewportHeight()
	case snapshotMsg:
		m.snapshot = msg.Snapshot
		m.header = m.renderHeader()
		m.updateViewportHeight()
	case stateMsg:
		m.state = msg.StationStateRow
	case adminMsg:
		m.admin = msg.active
	case setThresholdMsg:
		m.setThreshold = msg.fn
	}
	return m, nil
}

func (m tuiModel) adjustThreshold(delta int) {
	if m.setThreshold == nil {
		return
	}
	next := min(max(int(m.state.Threshold)+delta, 1), 1000)
	go m.setThreshold(next)
}

func (m tuiModel) tableRows() []table.Row {
	ids := make([]uint16, 0, len(m.motes))
	for id := range m.motes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		r := m.motes[id]
		rows = append(rows, table.Row{
			strconv.Itoa(int(id)),
			strconv.Itoa(int(r.latest)),
			strconv.Itoa(int(r.max)),
			strconv.Itoa(int(r.count)),
			strconv.Itoa(int(r.version)),
			r.lastSeen.Format(time.TimeOnly),
		})
	}
	return rows
}

func (m *tuiModel) updateViewportHeight() {
	h := m.height - lipgloss.Height(m.header) - lipgloss.Height(m.renderBottom()) - 2
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{m.header, divider, m.vp.View(), divider, m.renderBottom()}, "\n")
}

var (
	belowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("0"))
	aboveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("15"))
	boundaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("8"))
)

func (m tuiModel) renderGrid() string {
	rows := gridRows(m.snapshot, func(c grid.Cell, label string) string {
		switch c.Level {
		case grid.Above:
			return aboveStyle.Render(label)
		case grid.Boundary:
			return boundaryStyle.Render(label)
		}
		return belowStyle.Render(label)
	})
	if len(rows) == 0 {
		return "no motes yet"
	}
	title := fmt.Sprintf("threshold %d, %d region(s)", m.snapshot.Threshold, len(m.snapshot.Blobs()))
	return title + "\n" + strings.Join(rows, "\n")
}

func (m tuiModel) renderHeader() string {
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("│")
	return lipgloss.JoinHorizontal(lipgloss.Top, m.table.View(), sep, m.renderGrid())
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	state := fmt.Sprintf("%sSTATION%s %s %sversion=%d%s %sinterval=%dms%s %sthreshold=%d%s %srx=%d rejected=%d%s",
		colorBlue, colorReset, m.state.StationID,
		colorMagenta, m.state.Version, colorReset,
		colorCyan, m.state.Interval, colorReset,
		colorYellow, m.state.Threshold, colorReset,
		colorGreen, m.state.Received, m.state.Rejected, colorReset)
	return fmt.Sprintf("%s | Admin UI %s | Wrap %s | Scroll %s", state, indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll))
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q    quit",
		" w    toggle wrap for the log",
		" s    toggle auto-scroll",
		" +/-  raise or lower the threshold",
		" h/?  toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
