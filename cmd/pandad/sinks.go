package main

import (
	"log/slog"
	"os"

	"pandad/internal/config"
	"pandad/internal/sink"
)

// newWriters builds the health sinks from config. GREPTIMEDB_ENDPOINT overrides
// the configured endpoint. The returned cleanup closes any opened files.
func newWriters(cfg *config.Config, serial, session string, log *slog.Logger) (sink.Writer, func(), error) {
	cleanup := func() {}
	var ws []sink.Writer

	if cfg.Telemetry.Stdout {
		ws = append(ws, sink.NewJSONStdoutWriter())
	}

	endpoint := cfg.Telemetry.GreptimeEndpoint
	if env := os.Getenv("GREPTIMEDB_ENDPOINT"); env != "" {
		endpoint = env
	}
	if endpoint != "" {
		gw, err := sink.NewGreptimeDBWriter(sink.GreptimeConfig{
			Endpoint:        endpoint,
			Port:            cfg.Telemetry.GreptimePort,
			Database:        cfg.Telemetry.Database,
			StateTable:      cfg.Telemetry.Table,
			PeripheralTable: cfg.Telemetry.PeripheralTable,
			Serial:          serial,
			Session:         session,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("writing health to GreptimeDB", "endpoint", endpoint, "table", cfg.Telemetry.Table)
		ws = append(ws, gw)
	}

	if cfg.Telemetry.LogFile != "" {
		fw, err := sink.NewFileWriter(cfg.Telemetry.LogFile)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { fw.Close() }
		ws = append(ws, fw)
	}

	if len(ws) == 1 {
		return ws[0], cleanup, nil
	}
	return sink.NewMultiWriter(ws...), cleanup, nil
}
