// puppet: tracking fusion server
// Fuses network and local face tracking into one animation state and serves
// it to renderers over HTTP and websockets.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-puppet/internal/config"
	"github.com/teslashibe/go-puppet/internal/log"
	"github.com/teslashibe/go-puppet/pkg/ingest"
	"github.com/teslashibe/go-puppet/pkg/puppet"
	"github.com/teslashibe/go-puppet/pkg/web"
)

var version = "0.1.0"

func main() {
	// Command line flags override the environment
	addr := flag.String("addr", "", "HTTP listen address (PUPPET_HTTP_ADDR)")
	udpAddr := flag.String("udp", "", "OpenSeeFace UDP address (PUPPET_UDP_ADDR)")
	noUDP := flag.Bool("no-udp", false, "Disable the UDP listener")
	bridgeURL := flag.String("bridge", "", "Tracking bridge websocket URL (PUPPET_BRIDGE_URL)")
	broker := flag.String("mqtt", "", "MQTT broker URL (PUPPET_MQTT_BROKER)")
	demo := flag.Bool("demo", false, "Drive the puppet from the synthetic face")
	headPose := flag.String("head-pose", "", "Head pose source: geometry or network (PUPPET_HEAD_POSE)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *udpAddr != "" {
		cfg.UDPAddr = *udpAddr
	}
	if *noUDP {
		cfg.UDPEnabled = false
	}
	if *bridgeURL != "" {
		cfg.BridgeURL = *bridgeURL
	}
	if *broker != "" {
		cfg.MQTTBroker = *broker
	}
	if *demo {
		cfg.Demo = true
	}
	if *headPose != "" {
		cfg.HeadPoseSource = *headPose
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("puppet failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	pipeline, err := puppet.New(pcfg, nil, logger)
	if err != nil {
		return err
	}
	logger.Info("puppet starting",
		"version", version,
		"session", pipeline.SessionID(),
		"tick_interval", pcfg.TickInterval,
		"demo", pcfg.Demo,
		"head_pose", pcfg.HeadPoseSource)

	server := web.NewServer(web.Config{
		Addr:      cfg.HTTPAddr,
		Version:   version,
		StaticDir: cfg.StaticDir,
	}, pipeline, logger)
	pipeline.AddRenderer(server)

	// Local sensors connect to the same server
	local := ingest.NewLocalHub(pipeline, logger)
	local.RegisterRoutes(server.Router())
	server.AddSource(local)

	var mqttSource *ingest.MQTTSource
	if cfg.MQTTBroker != "" {
		if mqttSource, err = ingest.NewMQTTSource(cfg.MQTT(), pipeline, logger); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pipeline.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return server.Start(ctx)
	})

	if cfg.UDPEnabled {
		udp := ingest.NewUDPListener(cfg.UDPAddr, pipeline, logger)
		udp.OnTracking(server.RelayTracking)
		server.AddSource(udp)
		g.Go(func() error {
			return udp.Start(ctx)
		})
	}

	if cfg.BridgeURL != "" {
		bridge := ingest.NewBridgeClient(cfg.BridgeURL, pipeline, logger)
		bridge.OnTracking(server.RelayTracking)
		server.AddSource(bridge)
		g.Go(func() error {
			return bridge.Run(ctx)
		})
	}

	if mqttSource != nil {
		mqttSource.OnTracking(server.RelayTracking)
		server.AddSource(mqttSource)
		g.Go(func() error {
			return mqttSource.Run(ctx)
		})
	}

	return g.Wait()
}
