// Command logic-nodes runs the home automation logic nodes and publishes
// their outputs to MQTT and NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/teclab-at/logic-nodes/internal/config"
	"github.com/teclab-at/logic-nodes/internal/logger"
	"github.com/teclab-at/logic-nodes/internal/metrics"
	"github.com/teclab-at/logic-nodes/internal/mqtt"
	"github.com/teclab-at/logic-nodes/internal/natspub"
	"github.com/teclab-at/logic-nodes/internal/node"
	"github.com/teclab-at/logic-nodes/internal/status"
	"github.com/teclab-at/logic-nodes/internal/web"
)

// shutdownGrace bounds how long in-flight polls and deliveries may run
// after a shutdown signal.
const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file (empty uses built-in defaults)")
	flag.String("http", "", "HTTP status address, overrides http.addr (empty disables)")
	flag.String("broker", "", "MQTT broker address, overrides mqtt.broker (empty disables MQTT)")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")

	flag.Parse()

	overrides := map[string]string{}
	flag.Visit(func(f *flag.Flag) { overrides[f.Name] = f.Value.String() })

	cfg, err := loadConfig(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := cfg.Redacted().YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	if err := run(cfg, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads path (or the defaults) and applies command-line
// overrides, keyed by flag name.
func loadConfig(path string, overrides map[string]string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if v, ok := overrides["http"]; ok {
		cfg.HTTP.Addr = v
	}
	if v, ok := overrides["broker"]; ok {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = v != ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config, configPath string) error {
	closer, err := logger.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	log := logger.WithComponent("main")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	statusCfg := status.Config{
		PollInterval: cfg.Automower.PollInterval,
		HTTPAddr:     cfg.HTTP.Addr,
		ConfigFile:   configPath,
	}
	if cfg.MQTT.Enabled {
		statusCfg.Broker = cfg.MQTT.Broker
	}
	if cfg.NATS.Enabled {
		statusCfg.NATS = cfg.NATS.URL
	}
	tracker := status.NewTracker(time.Now(), statusCfg)

	sink := node.MultiSink{m}
	var systems systemFanout
	var links linkStatus

	if cfg.MQTT.Enabled {
		mqttLog := logger.WithComponent("mqtt")
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			BufferSize:  cfg.MQTT.BufferSize,
			Logger:      mqttLog,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		sink = append(sink, mqtt.NewSink(pub, mqttLog))
		systems = append(systems, pub)
		links.mqtt = pub
	}

	if cfg.NATS.Enabled {
		nc, err := natspub.Connect(natspub.Options{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Logger:        logger.WithComponent("nats"),
		})
		if err != nil {
			return fmt.Errorf("init nats: %w", err)
		}
		defer nc.Close()
		sink = append(sink, nc)
		systems = append(systems, nc)
		links.nats = nc
	}

	n, err := buildNodes(cfg, sink, m, openRealValve)
	if err != nil {
		return err
	}
	defer n.close(log)
	for _, src := range n.sources() {
		tracker.AddNode(src)
	}

	publishSystem(systems, links, tracker, time.Now, "STARTUP", "", log)

	if cfg.HTTP.Addr != "" {
		srv := web.New(n.webOptions(web.Options{
			Addr:     cfg.HTTP.Addr,
			Tracker:  tracker,
			Gatherer: reg,
			Logger:   logger.WithComponent("web"),
		}))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	var tick <-chan time.Time
	var mower trigger
	if n.mower != nil {
		ticker := time.NewTicker(cfg.Automower.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
		mower = n.mower
		n.mower.Trigger()
	}

	log.Info().
		Bool("mqtt", cfg.MQTT.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Int("nodes", len(n.sources())).
		Msg("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(mower, systems, links, tracker, time.Now, tick, sigCh, log)
	if !n.wait(shutdownGrace) {
		log.Warn().Dur("grace", shutdownGrace).Msg("node workers still running at shutdown")
	}
	return err
}

type trigger interface {
	Trigger()
}

type systemPublisher interface {
	PublishSystem(event mqtt.SystemEvent) error
}

// systemFanout publishes lifecycle events to every configured broker.
type systemFanout []systemPublisher

func (f systemFanout) PublishSystem(event mqtt.SystemEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishSystem(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// linkStatus mirrors broker connectivity into the tracker.
type linkStatus struct {
	mqtt mqtt.ConnectionStatus
	nats mqtt.ConnectionStatus
}

func (l linkStatus) update(tracker *status.Tracker) {
	if l.mqtt != nil {
		tracker.SetMQTTConnected(l.mqtt.IsConnected())
	}
	if l.nats != nil {
		tracker.SetNATSConnected(l.nats.IsConnected())
	}
}

func publishSystem(pub systemPublisher, links linkStatus, tracker *status.Tracker, now func() time.Time, event, reason string, log zerolog.Logger) {
	links.update(tracker)
	snap := tracker.Snapshot()
	err := pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Info().Str("event", event).Msg("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// runLoop triggers a mower poll on every tick and publishes SHUTDOWN when a
// signal arrives. A nil mower or tick channel disables polling.
func runLoop(mower trigger, pub systemPublisher, links linkStatus, tracker *status.Tracker, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, log zerolog.Logger) error {
	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			log.Info().Str("signal", reason).Msg("shutting down")
			publishSystem(pub, links, tracker, now, "SHUTDOWN", reason, log)
			return nil

		case <-tick:
			links.update(tracker)
			if mower != nil {
				mower.Trigger()
			}
		}
	}
}
