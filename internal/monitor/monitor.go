// Package monitor renders published daemon health in a terminal dashboard.
package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"pandad/internal/messaging"
)

const maxLogLines = 200

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

type pandaMsg struct {
	at    time.Time
	state messaging.PandaState
	valid bool
}

type peripheralMsg struct {
	at    time.Time
	state messaging.PeripheralState
}

// Writer forwards events into a running dashboard. It implements sink.Writer.
type Writer struct {
	program teaProgram
}

// NewWriter wraps a running program.
func NewWriter(p *tea.Program) *Writer {
	return &Writer{program: p}
}

func (w *Writer) WriteEvent(topic messaging.Topic, ev messaging.Event) error {
	at := ev.WallTime()
	switch topic {
	case messaging.TopicPandaStates:
		for _, ps := range ev.PandaStates {
			w.program.Send(pandaMsg{at: at, state: ps, valid: ev.Valid})
		}
	case messaging.TopicPeripheralState:
		if ev.PeripheralState != nil {
			w.program.Send(peripheralMsg{at: at, state: *ev.PeripheralState})
		}
	}
	return nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Model is the dashboard state.
type Model struct {
	source     string
	buses      table.Model
	vp         viewport.Model
	panda      *messaging.PandaState
	pandaAt    time.Time
	periph     *messaging.PeripheralState
	logs       []string
	lastFaults []int
	lastModel  uint16
	wrap       bool
	width      int
	height     int
}

// NewModel creates a dashboard titled with source.
func NewModel(source string) Model {
	cols := []table.Column{
		{Title: "Bus", Width: 4},
		{Title: "Rx", Width: 10},
		{Title: "Tx", Width: 10},
		{Title: "Lost", Width: 8},
		{Title: "Errors", Width: 8},
		{Title: "Last error", Width: 12},
		{Title: "Speed", Width: 10},
		{Title: "State", Width: 10},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(5))
	return Model{source: source, buses: t, vp: viewport.New(0, 0), wrap: true}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.buses.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.vp.Height = max(msg.Height-lipgloss.Height(m.renderHeader())-lipgloss.Height(m.buses.View())-3, 1)
		m.refreshLogs()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshLogs()
		}
	case pandaMsg:
		m.onPanda(msg)
	case peripheralMsg:
		st := msg.state
		m.periph = &st
	}
	return m, nil
}

func (m *Model) onPanda(msg pandaMsg) {
	st := msg.state
	if m.panda == nil || st.SafetyModel != m.lastModel {
		m.appendLog(msg.at, fmt.Sprintf("safety model %d param %d", st.SafetyModel, st.SafetyParam))
		m.lastModel = st.SafetyModel
	}
	if !equalInts(st.Faults, m.lastFaults) {
		if len(st.Faults) == 0 {
			m.appendLog(msg.at, "faults cleared")
		} else {
			m.appendLog(msg.at, fmt.Sprintf("faults %v", st.Faults))
		}
		m.lastFaults = st.Faults
	}
	if !msg.valid {
		m.appendLog(msg.at, "invalid pandaStates")
	}
	m.panda = &st
	m.pandaAt = msg.at
	m.buses.SetRows(busRows(st))
}

func (m *Model) appendLog(at time.Time, line string) {
	m.logs = append(m.logs, dimStyle.Render(at.Format("15:04:05.000"))+" "+line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshLogs()
}

func (m *Model) refreshLogs() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, len(m.logs))
		for i, l := range m.logs {
			lines[i] = wordwrap.String(l, m.vp.Width)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	m.vp.GotoBottom()
}

func busRows(st messaging.PandaState) []table.Row {
	rows := make([]table.Row, 0, 3)
	for i, cs := range st.CanStates() {
		state := "ok"
		switch {
		case cs.BusOff:
			state = "bus off"
		case cs.ErrorPassive:
			state = "passive"
		case cs.ErrorWarning:
			state = "warning"
		}
		speed := fmt.Sprintf("%d", cs.CanSpeed)
		if cs.CanfdEnabled {
			speed = fmt.Sprintf("%d/%d", cs.CanSpeed, cs.CanDataSpeed)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%d", cs.TotalRxCnt),
			fmt.Sprintf("%d", cs.TotalTxCnt),
			fmt.Sprintf("%d", cs.TotalTxLostCnt+cs.TotalRxLostCnt),
			fmt.Sprintf("%d", cs.TotalErrorCnt),
			cs.LastError,
			speed,
			state,
		})
	}
	return rows
}

func (m Model) renderHeader() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("pandad monitor") + dimStyle.Render(" "+m.source))
	b.WriteString("\n")
	if m.panda == nil {
		b.WriteString(dimStyle.Render("waiting for pandaStates..."))
		return b.String()
	}
	p := m.panda
	ign := badStyle.Render("off")
	if p.IgnitionLine || p.IgnitionCan {
		ign = okStyle.Render("on")
	}
	ctrl := dimStyle.Render("no")
	if p.ControlsAllowed {
		ctrl = warnStyle.Render("yes")
	}
	fmt.Fprintf(&b, "%s  uptime %ds  %.2fV %dmA  ignition %s  controls %s  safety %d/%d  harness %s",
		p.PandaType, p.Uptime, float64(p.Voltage)/1000, p.Current, ign, ctrl, p.SafetyModel, p.SafetyParam, p.HarnessStatus)
	if p.HeartbeatLost {
		b.WriteString("  " + badStyle.Render("heartbeat lost"))
	}
	if len(p.Faults) > 0 {
		b.WriteString("  " + badStyle.Render(fmt.Sprintf("faults %v", p.Faults)))
	}
	if m.periph != nil {
		fan := "n/a"
		if m.periph.FanSpeedRpm != nil {
			fan = fmt.Sprintf("%d rpm", *m.periph.FanSpeedRpm)
		}
		fmt.Fprintf(&b, "\nplatform %.2fV %dmA  fan %s", float64(m.periph.Voltage)/1000, m.periph.Current, fan)
	}
	return b.String()
}

func (m Model) View() string {
	divider := strings.Repeat("─", max(m.width, 1))
	help := dimStyle.Render("q quit • w wrap")
	return strings.Join([]string{m.renderHeader(), divider, m.buses.View(), divider, m.vp.View(), help}, "\n")
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
