package monitor

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"pandad/internal/messaging"
)

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

func TestWriterMessages(t *testing.T) {
	p := &fakeProgram{}
	w := &Writer{program: p}
	_ = w.WriteEvent(messaging.TopicPandaStates, messaging.Event{Valid: true, PandaStates: []messaging.PandaState{{}}})
	_ = w.WriteEvent(messaging.TopicPeripheralState, messaging.Event{PeripheralState: &messaging.PeripheralState{}})
	_ = w.WriteEvent(messaging.TopicCan, messaging.Event{})
	if len(p.msgs) != 2 {
		t.Fatalf("msgs = %d", len(p.msgs))
	}
	if _, ok := p.msgs[0].(pandaMsg); !ok {
		t.Fatalf("expected pandaMsg, got %T", p.msgs[0])
	}
	if _, ok := p.msgs[1].(peripheralMsg); !ok {
		t.Fatalf("expected peripheralMsg, got %T", p.msgs[1])
	}
}

func TestModelRendersState(t *testing.T) {
	var m tea.Model = NewModel("sim-0")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if !strings.Contains(m.View(), "waiting for pandaStates") {
		t.Fatalf("expected waiting banner")
	}
	st := messaging.PandaState{PandaType: "cuatro", Voltage: 12000, IgnitionLine: true, SafetyModel: 19, Faults: []int{0, 2}}
	st.CanState1.TotalRxCnt = 4242
	st.CanState1.LastError = "crcError"
	m, _ = m.Update(pandaMsg{state: st, valid: true})
	rpm := 1500
	m, _ = m.Update(peripheralMsg{state: messaging.PeripheralState{Voltage: 11900, FanSpeedRpm: &rpm}})

	view := m.View()
	for _, want := range []string{"cuatro", "12.00V", "4242", "crcError", "1500 rpm", "faults [0 2]"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	mm := m.(Model)
	if len(mm.logs) != 2 {
		t.Fatalf("logs = %v", mm.logs)
	}
}

func TestModelQuit(t *testing.T) {
	m := NewModel("x")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected QuitMsg")
	}
}

func TestModelToggleWrap(t *testing.T) {
	m := NewModel("x")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	if next.(Model).wrap {
		t.Fatalf("wrap should toggle off")
	}
}
