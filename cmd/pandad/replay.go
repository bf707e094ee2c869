package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pandad/internal/logging"
	"pandad/internal/sink"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replaySerial    string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded health log",
	Long:  "replay feeds events from a health log file back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		var w sink.Writer = sink.NewJSONStdoutWriter()
		if !replayPrintOnly {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			writer, cleanup, err := newWriters(cfg, replaySerial, uuid.NewString(), logging.New(cfg.LogLevel))
			if err != nil {
				return err
			}
			defer cleanup()
			w = writer
		}
		return sink.ReplayLogFile(replayInput, w, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to health log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print events to STDOUT instead of the configured sinks")
	replayCmd.Flags().StringVar(&replaySerial, "serial", "replay", "Serial tag for replayed rows")
	replayCmd.MarkFlagRequired("input")
}
