package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"pandad/internal/messaging"
)

const writeTimeout = 2 * time.Second

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes health snapshots to GreptimeDB. Rows are tagged with
// the device serial and the daemon session.
type GreptimeDBWriter struct {
	client          greptimeClient
	stateTable      string
	peripheralTable string
	serial          string
	session         string
	log             *slog.Logger
}

// GreptimeConfig locates the database and names the tables.
type GreptimeConfig struct {
	Endpoint        string
	Port            int
	Database        string
	StateTable      string
	PeripheralTable string
	Serial          string
	Session         string
}

// NewGreptimeDBWriter creates a writer backed by the ingester client.
func NewGreptimeDBWriter(cfg GreptimeConfig, log *slog.Logger) (*GreptimeDBWriter, error) {
	gcfg := greptime.NewConfig(cfg.Endpoint).WithPort(cfg.Port).WithDatabase(cfg.Database)
	client, err := greptime.NewClient(gcfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimeDBWriter{
		client:          client,
		stateTable:      cfg.StateTable,
		peripheralTable: cfg.PeripheralTable,
		serial:          cfg.Serial,
		session:         cfg.Session,
		log:             log,
	}, nil
}

// WriteEvent writes pandaStates and peripheralState events. Other topics are ignored.
func (w *GreptimeDBWriter) WriteEvent(topic messaging.Topic, ev messaging.Event) error {
	var (
		tbl *table.Table
		err error
	)
	switch topic {
	case messaging.TopicPandaStates:
		if len(ev.PandaStates) == 0 {
			return nil
		}
		tbl, err = w.pandaStatesTable(ev)
	case messaging.TopicPeripheralState:
		if ev.PeripheralState == nil || w.peripheralTable == "" {
			return nil
		}
		tbl, err = w.peripheralTableFor(ev)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("build %s rows: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptime write %s: %w", topic, err)
	}
	w.log.Debug("greptime wrote rows", "topic", topic)
	return nil
}

func (w *GreptimeDBWriter) newTable(name string) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("serial", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("session", types.STRING); err != nil {
		return nil, err
	}
	return tbl, nil
}

func (w *GreptimeDBWriter) pandaStatesTable(ev messaging.Event) (*table.Table, error) {
	tbl, err := w.newTable(w.stateTable)
	if err != nil {
		return nil, err
	}
	fields := []struct {
		name string
		typ  types.ColumnType
	}{
		{"panda_type", types.STRING},
		{"voltage", types.INT64},
		{"current", types.INT64},
		{"uptime", types.INT64},
		{"ignition_line", types.BOOLEAN},
		{"ignition_can", types.BOOLEAN},
		{"controls_allowed", types.BOOLEAN},
		{"safety_model", types.INT64},
		{"safety_param", types.INT64},
		{"safety_tx_blocked", types.INT64},
		{"safety_rx_invalid", types.INT64},
		{"fault_status", types.INT64},
		{"power_save", types.BOOLEAN},
		{"heartbeat_lost", types.BOOLEAN},
		{"harness_status", types.STRING},
		{"interrupt_load", types.FLOAT64},
		{"fan_power", types.INT64},
		{"sbu1_voltage", types.FLOAT64},
		{"sbu2_voltage", types.FLOAT64},
		{"can0_rx", types.INT64},
		{"can0_tx", types.INT64},
		{"can0_last_error", types.STRING},
		{"can1_rx", types.INT64},
		{"can1_tx", types.INT64},
		{"can1_last_error", types.STRING},
		{"can2_rx", types.INT64},
		{"can2_tx", types.INT64},
		{"can2_last_error", types.STRING},
	}
	for _, f := range fields {
		if err := tbl.AddFieldColumn(f.name, f.typ); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}

	ts := eventTime(ev)
	for _, ps := range ev.PandaStates {
		cs := ps.CanStates()
		err := tbl.AddRow(
			w.serial, w.session,
			ps.PandaType,
			int64(ps.Voltage), int64(ps.Current), int64(ps.Uptime),
			ps.IgnitionLine, ps.IgnitionCan, ps.ControlsAllowed,
			int64(ps.SafetyModel), int64(ps.SafetyParam),
			int64(ps.SafetyTxBlocked), int64(ps.SafetyRxInvalid),
			int64(ps.FaultStatus),
			ps.PowerSaveEnabled, ps.HeartbeatLost,
			ps.HarnessStatus,
			float64(ps.InterruptLoad), int64(ps.FanPower),
			ps.Sbu1Voltage, ps.Sbu2Voltage,
			int64(cs[0].TotalRxCnt), int64(cs[0].TotalTxCnt), cs[0].LastError,
			int64(cs[1].TotalRxCnt), int64(cs[1].TotalTxCnt), cs[1].LastError,
			int64(cs[2].TotalRxCnt), int64(cs[2].TotalTxCnt), cs[2].LastError,
			ts,
		)
		if err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

func (w *GreptimeDBWriter) peripheralTableFor(ev messaging.Event) (*table.Table, error) {
	tbl, err := w.newTable(w.peripheralTable)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name string
		typ  types.ColumnType
	}{
		{"panda_type", types.STRING},
		{"voltage", types.INT64},
		{"current", types.INT64},
		{"fan_speed_rpm", types.INT64},
	} {
		if err := tbl.AddFieldColumn(f.name, f.typ); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	ps := ev.PeripheralState
	var rpm any
	if ps.FanSpeedRpm != nil {
		rpm = int64(*ps.FanSpeedRpm)
	}
	if err := tbl.AddRow(w.serial, w.session, ps.PandaType, int64(ps.Voltage), int64(ps.Current), rpm, eventTime(ev)); err != nil {
		return nil, err
	}
	return tbl, nil
}
