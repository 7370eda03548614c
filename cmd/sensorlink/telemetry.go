package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/luki/sensorlink/internal/config"
	"github.com/luki/sensorlink/internal/discovery"
	"github.com/luki/sensorlink/internal/history"
	"github.com/luki/sensorlink/internal/hwmon"
	"github.com/luki/sensorlink/internal/logging"
	"github.com/luki/sensorlink/internal/metrics"
	"github.com/luki/sensorlink/internal/mirror"
	"github.com/luki/sensorlink/internal/monitor"
	"github.com/luki/sensorlink/internal/prompt"
	"github.com/luki/sensorlink/internal/sensor"
	"github.com/luki/sensorlink/internal/store"
	"github.com/luki/sensorlink/internal/telemetry"
	"github.com/luki/sensorlink/internal/transport"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := cfg.Log
	if cfg.TUI && lc.File == "" {
		dir := cfg.Record.Dir
		if dir == "" {
			dir = store.DataDir()
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create data dir: %w", err)
		}
		lc.File = filepath.Join(dir, "sensorlink.log")
	}
	return logging.New(lc)
}

func runTelemetry(cfg *config.Config) error {
	runID := uuid.NewString()
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("run_id", runID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Without a terminal there is nobody to answer a prompt, so several
	// GPUs or ports without a configured choice fail instead of blocking.
	var (
		gpuChooser  sensor.Chooser
		portChooser transport.Chooser
	)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		p := prompt.New(os.Stdin, os.Stdout)
		gpuChooser, portChooser = p, p
	} else {
		logger.Info("stdin is not a terminal, interactive selection disabled")
	}

	computer := hwmon.New(
		hwmon.WithSysRoot(cfg.Sensors.SysRoot),
		hwmon.WithNvidiaSMI(cfg.Sensors.NvidiaSMI),
		hwmon.WithLogger(logger),
	)
	provider := sensor.NewProvider(computer, gpuChooser, logger, sensor.WithGPU(cfg.Sensors.GPU))
	if err := provider.Initialize(); err != nil {
		return err
	}

	router, err := transport.Probe(ctx, logger, channels(cfg, portChooser, logger)...)
	defer func() {
		if cerr := router.Close(); cerr != nil {
			logger.Warn("closing channels", zap.Error(cerr))
		}
	}()
	if err != nil {
		for _, st := range router.Status() {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", st.Name, st.LastErr)
		}
		return fmt.Errorf("%w: check the display cable or that it is advertising %s", err, cfg.Network.Service)
	}
	if cfg.Reprobe.Enabled {
		router.EnableReprobe(transport.ReprobePolicy{
			InitialInterval: cfg.Reprobe.InitialInterval,
			MaxInterval:     cfg.Reprobe.MaxInterval,
		})
	}

	recorder := history.NewRecorder(history.DefaultCapacity)
	observers := []telemetry.Observer{recorder}
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("shutdown", zap.Error(err))
			}
		}
	}()

	recordDir := ""
	if cfg.Record.Enabled {
		ds, err := store.New(cfg.Record.Dir, logger)
		if err != nil {
			return err
		}
		closers = append(closers, ds)
		observers = append(observers, ds)
		recordDir = ds.Dir()
	}

	if cfg.Metrics.Addr != "" {
		m := metrics.New()
		observers = append(observers, m)
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, m, logger); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			stop()
			<-served
		}()
	}

	if cfg.MQTT.Broker != "" {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = "sensorlink-" + runID
		}
		mq, err := mirror.DialMQTT(ctx, mirror.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: clientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger)
		if err != nil {
			logger.Warn("MQTT mirror disabled", zap.Error(err))
		} else {
			closers = append(closers, mq)
			observers = append(observers, mq)
		}
	}

	if cfg.Influx.URL != "" {
		host, _ := os.Hostname()
		in := mirror.NewInflux(mirror.InfluxConfig{
			URL:         cfg.Influx.URL,
			Token:       cfg.Influx.Token,
			Org:         cfg.Influx.Org,
			Bucket:      cfg.Influx.Bucket,
			Measurement: cfg.Influx.Measurement,
			Host:        host,
		}, logger)
		closers = append(closers, in)
		observers = append(observers, in)
	}

	loop := telemetry.New(provider, router, logger,
		telemetry.WithInterval(cfg.Interval),
		telemetry.WithSendTimeout(cfg.SendTimeout),
		telemetry.WithObservers(observers...),
	)

	if !cfg.TUI {
		return loop.Run(ctx)
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	err = monitor.Run(ctx, monitor.New(recorder, monitor.Info{
		CPUName:   hardwareName(provider.CPU()),
		GPUName:   hardwareName(provider.GPU()),
		RecordDir: recordDir,
	}))
	stop()
	return errors.Join(err, <-loopDone)
}

func channels(cfg *config.Config, chooser transport.Chooser, logger *zap.Logger) []transport.Channel {
	var out []transport.Channel
	if cfg.Serial.Enabled {
		mode := transport.DisplayMode
		mode.BaudRate = cfg.Serial.BaudRate
		out = append(out, transport.NewSerialChannel(transport.SystemPorts{}, chooser, logger,
			transport.WithPort(cfg.Serial.Port),
			transport.WithMode(mode),
		))
	}
	if cfg.Network.Enabled {
		out = append(out, transport.NewNetworkChannel(discovery.New(logger), cfg.Network.Instance, logger,
			transport.WithService(cfg.Network.Service),
			transport.WithDiscoveryTimeout(cfg.Network.DiscoveryTimeout),
		))
	}
	return out
}

func hardwareName(hw sensor.Hardware) string {
	if hw == nil {
		return ""
	}
	return hw.Name()
}
