package main

import (
	"context"
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pandad/internal/logging"
	"pandad/internal/messaging"
	"pandad/internal/monitor"
	"pandad/internal/sink"
)

var (
	monitorInput string
	monitorSpeed float64
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show live transceiver health in the terminal",
	Long:  "monitor subscribes to pandaStates and peripheralState on the MQTT bus, or plays back a recorded health log, and renders them as a dashboard.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("monitor needs an interactive terminal")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var (
			source string
			feed   func(ctx context.Context, w sink.Writer) error
		)
		switch {
		case monitorInput != "":
			source = monitorInput
			feed = func(_ context.Context, w sink.Writer) error {
				return sink.ReplayLogFile(monitorInput, w, monitorSpeed)
			}
		case cfg.Bus.MQTTBroker != "":
			source = cfg.Bus.MQTTBroker
			bus, err := messaging.NewMQTTBus(cfg.Bus.MQTTBroker, cfg.Bus.TopicPrefix, "", logging.Discard())
			if err != nil {
				return err
			}
			defer bus.Close()
			feed = func(ctx context.Context, w sink.Writer) error {
				return sink.Forward(ctx, bus, w, logging.Discard())
			}
		default:
			return errors.New("monitor needs bus.mqtt_broker in config or --input")
		}

		p := tea.NewProgram(monitor.NewModel(source), tea.WithAltScreen())
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() {
			if err := feed(ctx, monitor.NewWriter(p)); err != nil {
				p.Quit()
			}
		}()
		_, err = p.Run()
		return err
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorInput, "input", "", "Play back a recorded health log instead of the live bus")
	monitorCmd.Flags().Float64Var(&monitorSpeed, "speed", 1.0, "Playback speed multiplier for --input")
}
