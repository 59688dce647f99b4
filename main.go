package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm-cable/blockorganism/block"
	"github.com/pthm-cable/blockorganism/config"
	"github.com/pthm-cable/blockorganism/organism"
	"github.com/pthm-cable/blockorganism/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = ORGANISM_CONFIG or defaults)")
	blockFile := flag.String("block-file", "", "JSON file holding one block header or an array of headers")
	height := flag.Int64("height", -1, "Block height to generate (-1 = every block in the file)")
	evolve := flag.Bool("evolve", false, "Generate the first block, then evolve it with each later block")
	ticks := flag.Int("ticks", 0, "Simulation ticks to run after generation")
	dt := flag.Float64("dt", 1.0/60.0, "Seconds per tick")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")

	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Telemetry.OutputDir = *outputDir
	}

	// Set up slog (JSON to stdout for structured logging)
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Telemetry.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	opts := runOptions{
		blockFile:   *blockFile,
		height:      *height,
		evolve:      *evolve,
		ticks:       *ticks,
		dt:          *dt,
		logStats:    *logStats,
		metricsAddr: *metricsAddr,
	}
	if err := run(cfg, opts); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	blockFile   string
	height      int64
	evolve      bool
	ticks       int
	dt          float64
	logStats    bool
	metricsAddr string
}

func run(cfg *config.Config, opts runOptions) error {
	if opts.blockFile == "" {
		return errors.New("-block-file is required")
	}
	src, err := block.LoadFile(opts.blockFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	om, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		return err
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	metrics := telemetry.NewMetrics()
	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:    opts.metricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	eng, err := organism.New(cfg,
		organism.WithLogger(slog.Default()),
		organism.WithMetrics(metrics),
		organism.WithOutput(om),
		organism.WithLogStats(opts.logStats),
		organism.WithTickDuration(opts.dt),
	)
	if err != nil {
		return err
	}
	defer eng.Dispose()

	heights := src.Heights()
	if opts.height >= 0 {
		heights = []int64{opts.height}
	}
	if len(heights) == 0 {
		return fmt.Errorf("%s holds no block headers", opts.blockFile)
	}

	slog.Info("starting generation",
		"blocks", len(heights),
		"evolve", opts.evolve,
		"ticks", opts.ticks,
		"dt", opts.dt,
		"pool_capacity", cfg.Pool.Capacity,
	)

	if opts.evolve {
		if err := generateAndEvolve(ctx, eng, src, heights); err != nil {
			return err
		}
	} else {
		for _, h := range heights {
			if _, err := eng.Generate(ctx, src, h); err != nil {
				// Pool exhaustion is expected once the pool fills; later blocks may be smaller
				slog.Warn("generation failed", "block", h, "error", err)
			}
		}
	}

	for i := 0; i < opts.ticks; i++ {
		if ctx.Err() != nil {
			slog.Info("interrupted", "tick", eng.CurrentTick())
			break
		}
		eng.Tick(opts.dt)
	}

	cs := eng.Catalog().Stats()
	slog.Info("run complete",
		"organisms", len(eng.Organisms()),
		"ticks", eng.CurrentTick(),
		"active_particles", eng.Pool().ActiveCount(),
		"cache_hits", cs.Hits,
		"cache_misses", cs.Misses,
		"cache_evictions", cs.Evictions,
	)
	eng.PerfStats().LogStats()
	return nil
}

// generateAndEvolve generates the first block's organism and applies every later block to it.
func generateAndEvolve(ctx context.Context, eng *organism.Engine, src block.Source, heights []int64) error {
	org, err := eng.Generate(ctx, src, heights[0])
	if err != nil {
		return err
	}
	for _, h := range heights[1:] {
		header, err := src.Header(ctx, h)
		if err != nil {
			return fmt.Errorf("resolve block %d: %w", h, err)
		}
		changed, err := eng.Evolve(org, header)
		if err != nil {
			return err
		}
		slog.Info("organism evolved",
			"organism", org.ID(),
			"block", h,
			"generation", org.Traits.Evolutionary.Generation,
			"changed", changed,
			"fitness", org.Traits.Evolutionary.Fitness,
		)
	}
	return nil
}
