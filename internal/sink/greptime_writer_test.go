package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"pandad/internal/logging"
	"pandad/internal/messaging"
)

type mockGreptimeClient struct {
	table *table.Table
	err   error
	calls int
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.calls++
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, m.err
}

func newTestGreptimeWriter(m *mockGreptimeClient) *GreptimeDBWriter {
	return &GreptimeDBWriter{
		client:          m,
		stateTable:      "panda_states",
		peripheralTable: "peripheral_states",
		serial:          "sim-0",
		session:         "s1",
		log:             logging.Discard(),
	}
}

func TestGreptimeWriterPandaStates(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newTestGreptimeWriter(m)
	ps := messaging.PandaState{PandaType: "cuatro", Voltage: 12000, IgnitionLine: true, SafetyModel: 19}
	ps.CanState1.TotalRxCnt = 77
	ps.CanState1.LastError = "crcError"
	ev := messaging.Event{LogMonoTime: 5, LogTime: time.Unix(10, 0).UnixNano(), Valid: true, PandaStates: []messaging.PandaState{ps}}

	if err := w.WriteEvent(messaging.TopicPandaStates, ev); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}
	rows := m.table.GetRows()
	if len(rows.Rows) != 1 {
		t.Fatalf("rows = %d", len(rows.Rows))
	}
	idx := map[string]int{}
	for i, c := range rows.Schema {
		idx[c.ColumnName] = i
	}
	vals := rows.Rows[0].Values
	if got := vals[idx["serial"]].GetStringValue(); got != "sim-0" {
		t.Fatalf("serial = %q", got)
	}
	if got := vals[idx["session"]].GetStringValue(); got != "s1" {
		t.Fatalf("session = %q", got)
	}
	if got := vals[idx["voltage"]].GetI64Value(); got != 12000 {
		t.Fatalf("voltage = %d", got)
	}
	if got := vals[idx["ignition_line"]].GetBoolValue(); !got {
		t.Fatalf("ignition_line = %v", got)
	}
	if got := vals[idx["can1_rx"]].GetI64Value(); got != 77 {
		t.Fatalf("can1_rx = %d", got)
	}
	if got := vals[idx["can1_last_error"]].GetStringValue(); got != "crcError" {
		t.Fatalf("can1_last_error = %q", got)
	}
	if rows.Schema[idx["serial"]].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("serial is not a tag")
	}
}

func TestGreptimeWriterPeripheral(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newTestGreptimeWriter(m)
	rpm := 2500
	ev := messaging.Event{Valid: true, PeripheralState: &messaging.PeripheralState{PandaType: "tres", Voltage: 11000, FanSpeedRpm: &rpm}}
	if err := w.WriteEvent(messaging.TopicPeripheralState, ev); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if got := m.table.GetRows().Rows[0].Values[2].GetStringValue(); got != "tres" {
		t.Fatalf("panda_type = %q", got)
	}
}

func TestGreptimeWriterIgnoresOtherTopics(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newTestGreptimeWriter(m)
	if err := w.WriteEvent(messaging.TopicCan, messaging.Event{Can: []messaging.CanData{{Address: 1}}}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if err := w.WriteEvent(messaging.TopicPandaStates, messaging.Event{}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if m.calls != 0 {
		t.Fatalf("client called %d times", m.calls)
	}
}

func TestGreptimeWriterClientError(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	w := newTestGreptimeWriter(m)
	ev := messaging.Event{PandaStates: []messaging.PandaState{{}}}
	if err := w.WriteEvent(messaging.TopicPandaStates, ev); err == nil {
		t.Fatalf("expected error")
	}
}
