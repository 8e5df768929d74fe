// Command radarbias estimates and applies the mean field bias between
// radar rainfall composites and rain gauge observations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/meteoworks/radarbias/internal/accum"
	httpadapter "github.com/meteoworks/radarbias/internal/adapter/http"
	kafkaadapter "github.com/meteoworks/radarbias/internal/adapter/kafka"
	"github.com/meteoworks/radarbias/internal/archive"
	"github.com/meteoworks/radarbias/internal/config"
	"github.com/meteoworks/radarbias/internal/correct"
	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/gauge"
	"github.com/meteoworks/radarbias/internal/grid"
	"github.com/meteoworks/radarbias/internal/importer"
	"github.com/meteoworks/radarbias/internal/kalman"
	"github.com/meteoworks/radarbias/internal/observability"
	"github.com/meteoworks/radarbias/internal/orchestrator"
	"github.com/meteoworks/radarbias/internal/pairs"
)

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "radarbias",
		Usage: "radar-gauge mean field bias estimation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "profile", Value: "default", Usage: "configuration profile name"},
			&cli.StringFlag{Name: "config-dir", Value: "config", Usage: "configuration root directory"},
		},
		Commands: []*cli.Command{
			collectCommand(),
			estimateCommand(),
			runCommand(),
			applyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func loadProfile(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config-dir"), c.String("profile"))
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	return cfg, logger, nil
}

func timestampFlag(c *cli.Context, name string) (time.Time, error) {
	ts, err := domain.ParseTimestamp(c.String(name))
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return ts, nil
}

// buildCollector wires the archive browser, accumulator, projector,
// and gauge source declared by the profile into a pair collector. The
// returned closer releases the gauge source, if any.
func buildCollector(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*pairs.Collector, func(), error) {
	decode, err := importer.Get(cfg.Radar.Importer)
	if err != nil {
		return nil, nil, err
	}

	browser, err := archive.NewBrowser(archive.Template{
		RootPath:    cfg.Radar.Archive.RootPath,
		PathFmt:     cfg.Radar.Archive.PathFmt,
		FnPattern:   cfg.Radar.Archive.FnPattern,
		FnExt:       cfg.Radar.Archive.FnExt,
		StepMinutes: cfg.Radar.Timestep,
	})
	if err != nil {
		return nil, nil, err
	}

	assembler, err := accum.NewAssembler(browser, decode,
		cfg.Radar.AccumPeriod, cfg.Gauge.AccumPeriod,
		cfg.MissingValues.MaxMissingRadarTimestamps, logger)
	if err != nil {
		return nil, nil, err
	}

	proj, err := grid.ParseProjection(cfg.Radar.Projection)
	if err != nil {
		return nil, nil, err
	}
	extent := grid.ExtentFromCorners(proj,
		cfg.Radar.BBox.LLLon, cfg.Radar.BBox.LLLat,
		cfg.Radar.BBox.URLon, cfg.Radar.BBox.URLat,
		domain.YOrigin(cfg.Radar.YOrigin))
	projector, err := grid.NewProjector(proj, extent)
	if err != nil {
		return nil, nil, err
	}

	source, closer, err := buildGaugeSource(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	sites, err := radarSites(cfg)
	if err != nil {
		closer()
		return nil, nil, err
	}

	collector, err := pairs.NewCollector(assembler, projector, source, pairs.Options{
		BBox: gauge.BoundingBox{
			LLLon: cfg.BBox.LLLon, LLLat: cfg.BBox.LLLat,
			URLon: cfg.BBox.URLon, URLat: cfg.BBox.URLat,
		},
		GaugePeriodMinutes: cfg.Gauge.AccumPeriod,
		RadarThreshold:     cfg.Thresholds.Radar,
		GaugeThreshold:     cfg.Thresholds.Gauge,
		WithDistance:       cfg.HasAttribute("distance"),
		RadarSites:         sites,
	}, logger, metrics)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return collector, closer, nil
}

func buildGaugeSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gauge.Source, func(), error) {
	switch cfg.Gauge.Source {
	case "http":
		timeout := time.Duration(cfg.Gauge.TimeoutSecs) * time.Second
		return gauge.NewHTTPSource(cfg.Gauge.URL, cfg.Gauge.Quantity, timeout, logger), func() {}, nil
	case "postgres":
		src, err := gauge.NewPostgresSource(ctx, cfg.Gauge.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	case "file":
		return gauge.NewFileSource(cfg.Gauge.FixturePath), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown gauge source %q", domain.ErrConfiguration, cfg.Gauge.Source)
	}
}

func radarSites(cfg *config.Config) ([]pairs.RadarSite, error) {
	parsed, err := cfg.RadarSites()
	if err != nil {
		return nil, err
	}
	sites := make([]pairs.RadarSite, len(parsed))
	for i, s := range parsed {
		sites[i] = pairs.RadarSite{Name: s.Name, Lon: s.Lon, Lat: s.Lat}
	}
	return sites, nil
}

func collectCommand() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "collect radar-gauge pairs for a timestamp range",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start", Required: true, Usage: "first slot, YYYYMMDDHHMM UTC"},
			&cli.StringFlag{Name: "end", Required: true, Usage: "last slot, YYYYMMDDHHMM UTC"},
			&cli.StringFlag{Name: "out", Required: true, Usage: "output pair file"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadProfile(c)
			if err != nil {
				return err
			}
			start, err := timestampFlag(c, "start")
			if err != nil {
				return err
			}
			end, err := timestampFlag(c, "end")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics := observability.NewMetrics()
			collector, closeSource, err := buildCollector(ctx, cfg, logger, metrics)
			if err != nil {
				return err
			}
			defer closeSource()

			collection, err := collector.Collect(ctx, start, end)
			if err != nil {
				return err
			}
			if err := pairs.Save(c.String("out"), collection); err != nil {
				return err
			}
			logger.Info("pairs collected",
				"pairs", collection.Len(),
				"slots", len(pairs.Timestamps(collection)),
				"out", c.String("out"))
			return nil
		},
	}
}

func estimateCommand() *cli.Command {
	return &cli.Command{
		Name:  "estimate",
		Usage: "run one Kalman filter invocation against a pair file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Required: true, Usage: "update timestamp, YYYYMMDDHHMM UTC"},
			&cli.StringFlag{Name: "pairs", Required: true, Usage: "input pair file"},
			&cli.StringFlag{Name: "out", Required: true, Usage: "output state file"},
			&cli.StringFlag{Name: "prev-state", Usage: "previous state file (defaults to --out)"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadProfile(c)
			if err != nil {
				return err
			}
			ts, err := timestampFlag(c, "date")
			if err != nil {
				return err
			}

			collection, err := pairs.Load(c.String("pairs"))
			if err != nil {
				return err
			}

			prevPath := c.String("prev-state")
			if prevPath == "" {
				prevPath = c.String("out")
			}
			prev, err := kalman.LoadStateIfExists(prevPath)
			if err != nil {
				return err
			}

			estimator, err := kalman.NewEstimator(cfg.Kalman, logger, observability.NewMetrics())
			if err != nil {
				return err
			}
			res := estimator.Step(prev, collection, ts)
			if err := kalman.SaveState(c.String("out"), res); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "corr_factor %.6f\n", res.CorrFactor)
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run collect-estimate-persist cycles over a timestamp range",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start", Required: true, Usage: "first slot, YYYYMMDDHHMM UTC"},
			&cli.StringFlag{Name: "end", Required: true, Usage: "last slot, YYYYMMDDHHMM UTC"},
			&cli.StringFlag{Name: "state", Required: true, Usage: "estimator state file"},
			&cli.StringFlag{Name: "pairs-dir", Usage: "directory receiving one pair file per slot"},
			&cli.StringFlag{Name: "http", Usage: "serve health/readiness/bias/metrics on this address"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadProfile(c)
			if err != nil {
				return err
			}
			start, err := timestampFlag(c, "start")
			if err != nil {
				return err
			}
			end, err := timestampFlag(c, "end")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics := observability.NewMetrics()
			collector, closeSource, err := buildCollector(ctx, cfg, logger, metrics)
			if err != nil {
				return err
			}
			defer closeSource()

			estimator, err := kalman.NewEstimator(cfg.Kalman, logger, metrics)
			if err != nil {
				return err
			}

			var publisher orchestrator.BiasPublisher
			if cfg.Kafka.Enabled {
				p := kafkaadapter.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
				defer p.Close() //nolint:errcheck // nothing to do on close failure at exit
				publisher = p
			}

			orch, err := orchestrator.New(collector, estimator, publisher, orchestrator.Options{
				StatePath:          c.String("state"),
				PairsDir:           c.String("pairs-dir"),
				GaugePeriodMinutes: cfg.Gauge.AccumPeriod,
			}, logger, metrics)
			if err != nil {
				return err
			}

			addr := c.String("http")
			if addr == "" {
				addr = cfg.HTTPAddr
			}
			if addr != "" {
				srv := httpadapter.NewServer(addr, orch, logger)
				go func() {
					if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("http server error", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						logger.Error("http server shutdown error", "error", err)
					}
				}()
			}

			final, err := orch.Run(ctx, start, end)
			if err != nil {
				return err
			}
			if final != nil {
				fmt.Fprintf(c.App.Writer, "corr_factor %.6f\n", final.CorrFactor)
			}
			return nil
		},
	}
}

func applyCommand() *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "apply the persisted correction factor to a composite",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Required: true, Usage: "input composite"},
			&cli.StringFlag{Name: "out", Required: true, Usage: "output composite"},
			&cli.StringFlag{Name: "state", Required: true, Usage: "estimator state file"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadProfile(c)
			if err != nil {
				return err
			}
			decode, err := importer.Get(cfg.Radar.Importer)
			if err != nil {
				return err
			}
			state, err := kalman.LoadState(c.String("state"))
			if err != nil {
				return err
			}
			if err := correct.ApplyFile(c.String("in"), c.String("out"), decode, state); err != nil {
				return err
			}
			logger.Info("composite corrected",
				"in", c.String("in"), "out", c.String("out"),
				"corr_factor", state.CorrFactor)
			return nil
		},
	}
}
