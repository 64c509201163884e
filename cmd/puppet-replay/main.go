// puppet-replay: replays a pcap of OpenSeeFace traffic through the pipeline
// and prints the animation state as JSON lines, one per tick.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-puppet/internal/config"
	"github.com/teslashibe/go-puppet/internal/log"
	"github.com/teslashibe/go-puppet/internal/timeutil"
	"github.com/teslashibe/go-puppet/pkg/ingest"
	"github.com/teslashibe/go-puppet/pkg/puppet"
	"github.com/teslashibe/go-puppet/pkg/smoothing"
)

// tickLine is one output record.
type tickLine struct {
	State  smoothing.AnimationState `json:"state"`
	Status puppet.Status            `json:"status"`
}

func main() {
	port := flag.Int("port", 11573, "Only replay UDP datagrams to this port (0 = all)")
	speed := flag.Float64("speed", 1, "Replay speed multiplier (0 = as fast as possible, ticking on capture time)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] capture.pcap\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)
	logger := log.L()

	pcfg, err := cfg.Pipeline()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	// Unpaced replays tick on capture time instead of the wall clock.
	var clock *timeutil.MockClock
	if *speed <= 0 {
		clock = timeutil.NewMockClock(time.Time{})
	}
	pipeline, err := newPipeline(pcfg, clock, logger)
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	pipeline.AddRenderer(puppet.RendererFunc(func(state smoothing.AnimationState, status puppet.Status) {
		if err := enc.Encode(tickLine{State: state, Status: status}); err != nil {
			logger.Warn("write failed", "error", err)
		}
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc := ingest.ReplayConfig{Port: *port, Speed: *speed}
	if clock != nil {
		rc.OnCapture = func(captured time.Time) {
			pipeline.StepTo(captured)
			clock.Set(captured)
		}
	}
	replayer := ingest.NewReplayer(rc, pipeline, logger)

	if clock != nil {
		err := replayer.ReplayFile(ctx, flag.Arg(0))
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("replay failed", "error", err)
			os.Exit(1)
		}
		// Render the last packet.
		pipeline.StepTo(clock.Now().Add(pcfg.TickInterval))
		logger.Info("replay finished", "stats", replayer.Stats())
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopPipeline := context.WithCancel(gctx)
	g.Go(func() error {
		pipeline.Run(runCtx)
		return nil
	})
	g.Go(func() error {
		defer stopPipeline()
		return replayer.ReplayFile(gctx, flag.Arg(0))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("replay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("replay finished", "stats", replayer.Stats())
}

func newPipeline(cfg puppet.Config, clock *timeutil.MockClock, logger *slog.Logger) (*puppet.Pipeline, error) {
	if clock == nil {
		return puppet.New(cfg, nil, logger)
	}
	return puppet.New(cfg, clock, logger)
}
