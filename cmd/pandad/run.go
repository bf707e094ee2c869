package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pandad/internal/admin"
	"pandad/internal/config"
	"pandad/internal/device"
	"pandad/internal/hardware"
	"pandad/internal/logging"
	"pandad/internal/messaging"
	"pandad/internal/pandad"
	"pandad/internal/params"
	"pandad/internal/realtime"
	"pandad/internal/sink"
)

var runCmd = &cobra.Command{
	Use:   "run [serial]",
	Short: "Run the control loop against one transceiver",
	Long:  "run connects to the given transceiver, or the first one found, and runs the 100 Hz control loop until it stops.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		serial := cfg.Device.Serial
		if len(args) == 1 {
			serial = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runDaemon(ctx, cfg, serial)
	},
}

func runDaemon(ctx context.Context, cfg *config.Config, serial string) error {
	session := uuid.NewString()
	log := logging.New(cfg.LogLevel).With("session", session)
	ctx = logging.NewContext(ctx, log)

	platform := newPlatform(cfg)
	if !platform.PC() {
		// The loop runs on this goroutine, so pin it before raising its priority.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := realtime.Setup(cfg.Loop.RealtimeCore, cfg.Loop.RealtimePriority); err != nil {
			log.Warn("realtime setup failed", "err", err)
		}
	}

	store, err := params.NewFileStore(cfg.Params.Dir)
	if err != nil {
		return err
	}

	bus, err := newBus(cfg, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	writer, cleanup, err := newWriters(cfg, serial, session, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Admin.Addr != "" {
		srv := admin.NewServer(log)
		writer = sink.NewMultiWriter(writer, srv)
		go func() {
			if err := srv.Start(ctx, cfg.Admin.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin server failed", "err", err)
			}
		}()
	}
	// subscribe before the loop starts so the first health events reach the sinks
	fwd, err := sink.Subscribe(bus)
	if err != nil {
		return err
	}
	go func() {
		if err := fwd.Run(ctx, writer, log); err != nil {
			log.Error("sink forwarding stopped", "err", err)
		}
	}()

	opts := pandad.Options{
		Bus:                 bus,
		Params:              store,
		Platform:            platform,
		Env:                 config.LoadEnv(),
		RateHz:              float64(cfg.Loop.RateHz),
		PrintDelayThreshold: time.Duration(cfg.Loop.PrintDelayThresholdMs) * time.Millisecond,
	}
	return pandad.Main(ctx, newDriver(cfg, log), serial, opts)
}

func newPlatform(cfg *config.Config) hardware.Platform {
	if cfg.PC {
		return hardware.PCPlatform{}
	}
	return &hardware.Sysfs{
		VoltagePath: cfg.Hwmon.VoltagePath,
		CurrentPath: cfg.Hwmon.CurrentPath,
		IRPath:      cfg.Hwmon.IRPath,
	}
}

// newBus returns an MQTT bus when a broker is configured and an in-process bus otherwise.
func newBus(cfg *config.Config, log *slog.Logger) (messaging.Bus, error) {
	if cfg.Bus.MQTTBroker == "" {
		log.Info("using in-process message bus")
		return messaging.NewMemoryBus(messaging.DefaultQueueDepth), nil
	}
	bus, err := messaging.NewMQTTBus(cfg.Bus.MQTTBroker, cfg.Bus.TopicPrefix, cfg.Bus.ClientID, log)
	if err != nil {
		return nil, err
	}
	log.Info("using mqtt message bus", "broker", cfg.Bus.MQTTBroker)
	return bus, nil
}

func newDriver(cfg *config.Config, log *slog.Logger) device.Driver {
	if cfg.Device.Driver == "sim" {
		var serials []string
		if cfg.Device.Serial != "" {
			serials = []string{cfg.Device.Serial}
		}
		return device.SimDriver{Serials: serials}
	}
	return device.SocketCANDriver{
		Buses:     cfg.Device.Buses,
		DebugPort: cfg.Device.DebugPort,
		DebugBaud: cfg.Device.DebugBaud,
		Logger:    log,
	}
}
