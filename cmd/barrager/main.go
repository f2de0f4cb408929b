package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
	"k8s.io/utils/ptr"

	"github.com/lixenwraith/barrager/audio"
	"github.com/lixenwraith/barrager/config"
	"github.com/lixenwraith/barrager/core"
	"github.com/lixenwraith/barrager/engine"
	"github.com/lixenwraith/barrager/feed"
	"github.com/lixenwraith/barrager/geometry"
	"github.com/lixenwraith/barrager/metrics"
	"github.com/lixenwraith/barrager/render"
	"github.com/lixenwraith/barrager/status"
)

var (
	configPath  = flag.StringP("config", "c", "", "TOML file with a [barrager] table")
	debug       = flag.Bool("debug", false, "write logs to logs/barrager.log")
	metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	feedPath    = flag.StringP("feed", "f", "", "push every line appended to this file instead of demo content")
	fromStart   = flag.Bool("from-start", false, "with --feed, also push lines already in the file")
	sound       = flag.Bool("sound", false, "play a chime when a fragment starts")
	volume      = flag.Float64("volume", 0.6, "cue volume in [0, 1]")
	speed       = flag.Float64("speed", 0, "cells per second; overrides duration")
	duration    = flag.String("duration", "", `total transit time, e.g. "8s"`)
	trackHeight = flag.Float64("track-height", 0, "rows per lane")
	gap         = flag.Float64("gap", 0, "cells a fragment must clear before its lane frees")
	reuse       = flag.Bool("reuse", false, "place into running lanes when the newest fragment cannot be caught")
	hoverPause  = flag.Bool("hover-pause", false, "pause the fragment under the mouse pointer")
	clickPause  = flag.Bool("click-pause", true, "toggle pause on the clicked fragment")
	interval    = flag.Duration("interval", 400*time.Millisecond, "demo push interval")
	highEvery   = flag.Int("high-every", 5, "demo: every Nth push is high priority, 0 for none")
)

// builtin is the option layer used when neither file nor flags set motion
var builtin = config.Options{
	TrackHeight: 1,
	Speed:       20,
}

// loadOptions layers the built-in options, the config file and explicitly set flags
func loadOptions() (config.Options, error) {
	opts := builtin
	if *configPath != "" {
		file, err := config.Load(*configPath)
		if err != nil {
			return config.Options{}, err
		}
		opts = opts.Merge(file)
	}

	var cli config.Options
	if flag.CommandLine.Changed("speed") {
		cli.Speed = *speed
	}
	if flag.CommandLine.Changed("duration") {
		cli.Duration = *duration
		if !flag.CommandLine.Changed("speed") {
			// An explicit duration replaces the built-in speed
			opts.Speed = 0
		}
	}
	if flag.CommandLine.Changed("track-height") {
		cli.TrackHeight = *trackHeight
	}
	if flag.CommandLine.Changed("gap") {
		cli.Gap = *gap
	}
	if flag.CommandLine.Changed("reuse") {
		cli.ReuseRunningLanes = ptr.To(*reuse)
	}
	if opts.PauseOnHover == nil || flag.CommandLine.Changed("hover-pause") {
		cli.PauseOnHover = ptr.To(*hoverPause)
	}
	if opts.PauseOnClick == nil || flag.CommandLine.Changed("click-pause") {
		cli.PauseOnClick = ptr.To(*clickPause)
	}
	return opts.Merge(cli), nil
}

func main() {
	flag.Parse()

	logger, logFile := setupLogging(*debug)
	if logFile != nil {
		defer logFile.Close()
	}

	if err := run(logger); err != nil {
		fmt.Fprintf(os.Stderr, "barrager: %v\n", err)
		os.Exit(1)
	}
}

func run(logger logr.Logger) error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("screen init: %w", err)
	}
	core.SetReset(screen.Fini)
	defer screen.Fini()
	screen.EnableMouse(tcell.MouseMotionEvents)
	screen.HideCursor()

	clk := clock.RealClock{}
	term := render.NewTerminal(screen, clk)
	reg := status.NewRegistry()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	rec := metrics.NewRecorder(promReg)

	var cue *audio.Cue
	if *sound {
		cue = audio.NewCue(*volume, clk)
		if err := cue.Init(); err != nil {
			// Non-fatal, runs silently
			logger.Error(err, "audio unavailable")
			cue = nil
		} else {
			defer cue.Close()
			opts.OnStart = cue.Start
			opts.OnEnd = cue.End
		}
	}

	b, err := engine.New(term, geometry.NewCellMeasurer(), term, opts,
		engine.WithClock(clk),
		engine.WithLogger(logger.WithName("engine")),
		engine.WithStatus(reg),
		engine.WithMetrics(rec),
	)
	if err != nil {
		return err
	}
	defer b.Close()

	app := NewApp(screen, term, b, reg, logger.WithName("app"))
	if cue != nil {
		app.onDrop = cue.Drop
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	events := make(chan tcell.Event, 256)
	// PollEvent returns nil once the screen is finalized
	core.Go(func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	})

	g.Go(core.Guard(func() error {
		defer cancel()
		return app.Run(ctx, events)
	}))

	if *feedPath != "" {
		tail := feed.NewTail(*feedPath, *fromStart, logger)
		g.Go(core.Guard(func() error { return app.Follow(ctx, tail) }))
	} else {
		g.Go(core.Guard(func() error { return app.Generate(ctx, *interval, *highEvery) }))
	}

	if *metricsAddr != "" {
		g.Go(core.Guard(func() error { return serveMetrics(ctx, *metricsAddr, promReg, logger) }))
	}

	return g.Wait()
}

// serveMetrics exposes the Prometheus registry until ctx is done
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger logr.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
