// Package orchestrator drives the full collect-estimate-persist cycle
// over a range of gauge accumulation slots.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meteoworks/radarbias/internal/accum"
	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/kalman"
	"github.com/meteoworks/radarbias/internal/observability"
	"github.com/meteoworks/radarbias/internal/pairs"
)

// PairCollector produces radar-gauge pairs for a timestamp range.
type PairCollector interface {
	Collect(ctx context.Context, start, end time.Time) (domain.PairCollection, error)
}

// BiasPublisher pushes one filter update to downstream consumers.
type BiasPublisher interface {
	Publish(ctx context.Context, ts time.Time, state kalman.FilterState, corrFactor float64) error
}

// Options configure one orchestrator run.
type Options struct {
	// StatePath is the estimator state file, read before the first
	// cycle and rewritten after every cycle.
	StatePath string
	// PairsDir, when set, receives one pair file per slot.
	PairsDir string
	// GaugePeriodMinutes is the slot width.
	GaugePeriodMinutes int
}

// Orchestrator iterates gauge-period slots and runs one estimation
// cycle per slot. Slots whose radar or gauge data is unavailable still
// advance the filter without an observation; only configuration and
// state corruption errors abort the run.
type Orchestrator struct {
	collector PairCollector
	estimator *kalman.Estimator
	publisher BiasPublisher
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu     sync.Mutex
	latest *kalman.Persisted
}

// New creates an Orchestrator. The publisher may be nil when no Kafka
// sink is configured.
func New(collector PairCollector, estimator *kalman.Estimator, publisher BiasPublisher, opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Orchestrator, error) {
	if opts.StatePath == "" {
		return nil, fmt.Errorf("%w: orchestrator requires a state path", domain.ErrConfiguration)
	}
	if opts.GaugePeriodMinutes <= 0 {
		return nil, fmt.Errorf("%w: gauge period must be positive, got %d", domain.ErrConfiguration, opts.GaugePeriodMinutes)
	}
	return &Orchestrator{
		collector: collector,
		estimator: estimator,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// LatestState returns the state written by the most recent completed
// cycle, or nil before the first one.
func (o *Orchestrator) LatestState(_ context.Context) (*kalman.Persisted, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest, nil
}

// Run walks every gauge slot in [start, end] and runs one cycle per
// slot. Returns the state after the final cycle.
func (o *Orchestrator) Run(ctx context.Context, start, end time.Time) (*kalman.Persisted, error) {
	prev, err := kalman.LoadStateIfExists(o.opts.StatePath)
	if err != nil {
		return nil, err
	}

	if o.opts.PairsDir != "" {
		if err := os.MkdirAll(o.opts.PairsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create pairs directory: %w", err)
		}
	}

	slots := domain.Slots(start, end, o.opts.GaugePeriodMinutes)
	o.logger.Info("run started",
		"start", domain.FormatTimestamp(start),
		"end", domain.FormatTimestamp(end),
		"slots", len(slots),
	)

	for _, ts := range slots {
		if ctx.Err() != nil {
			o.logger.Info("run stopping", "reason", ctx.Err())
			return prev, ctx.Err()
		}

		prev, err = o.cycle(ctx, ts, prev)
		if err != nil {
			return nil, err
		}
	}

	if prev != nil {
		o.logger.Info("run finished", "corr_factor", prev.CorrFactor)
	}
	return prev, nil
}

// cycle collects pairs for one slot, steps the filter, and persists
// the result. Unavailable data degrades to an observation-free update.
func (o *Orchestrator) cycle(ctx context.Context, ts time.Time, prev *kalman.Persisted) (*kalman.Persisted, error) {
	started := time.Now()

	collection, err := o.collector.Collect(ctx, ts, ts)
	switch {
	case err == nil:
	case accum.IsSkip(err) || errors.Is(err, domain.ErrArchiveUnavailable):
		o.logger.Warn("no pairs for slot, advancing filter without observation",
			"timestamp", domain.FormatTimestamp(ts), "error", err)
		collection = domain.PairCollection{}
	default:
		return nil, fmt.Errorf("collect pairs for %s: %w", domain.FormatTimestamp(ts), err)
	}

	if o.opts.PairsDir != "" && collection.Len() > 0 {
		path := filepath.Join(o.opts.PairsDir, "pairs_"+domain.FormatTimestamp(ts)+".json")
		if err := pairs.Save(path, collection); err != nil {
			return nil, err
		}
	}

	res := o.estimator.Step(prev, collection, ts)
	if err := kalman.SaveState(o.opts.StatePath, res); err != nil {
		return nil, err
	}

	next := &kalman.Persisted{
		FilterState: res.State,
		PredState:   res.Predicted,
		CorrFactor:  res.CorrFactor,
		UpdatedAt:   domain.Now().UTC(),
	}

	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, ts, res.State, res.CorrFactor); err != nil {
			// Downstream consumers recover from the state file; a
			// publish failure does not invalidate the cycle.
			o.logger.Error("publish bias update failed",
				"timestamp", domain.FormatTimestamp(ts), "error", err)
		} else {
			o.metrics.BiasUpdatesPublished.Inc()
		}
	}

	o.mu.Lock()
	o.latest = next
	o.mu.Unlock()

	o.metrics.CyclesCompleted.Inc()
	o.metrics.CycleDuration.Observe(time.Since(started).Seconds())

	o.logger.Info("cycle completed",
		"timestamp", domain.FormatTimestamp(ts),
		"pairs", collection.Len(),
		"beta", res.State.Beta,
		"corr_factor", res.CorrFactor,
	)
	return next, nil
}
