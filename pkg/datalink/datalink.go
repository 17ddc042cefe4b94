// Package datalink pairs a source runner with a sink runner and drives one
// batch at a time from the first to the second.
//
//	link := datalink.New("landing->warehouse", sourceRunner, sinkRunner, datalink.WithPressureless(true))
//	stats, err := link.Run(ctx)
//
// Extraction and load alternate: the next unit is pulled only after the
// previous batch has been pushed.
package datalink

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/logger"
	"github.com/ajitpratap0/hdm/pkg/metrics"
	"github.com/ajitpratap0/hdm/pkg/observability"
	"github.com/ajitpratap0/hdm/pkg/runner"
)

// Stats counts what a link run did.
type Stats struct {
	Pulled   int
	Pushed   int
	Failed   int
	Skipped  int
	Records  int
	Duration time.Duration
}

// DataLink is one source → sink pipeline.
type DataLink struct {
	name         string
	source       *runner.SourceRunner
	sink         *runner.SinkRunner
	pressureless bool
	logger       *zap.Logger

	running atomic.Bool
}

// Option configures a DataLink.
type Option func(*DataLink)

// WithPressureless marks the link as exempt from the admission budget.
func WithPressureless(p bool) Option {
	return func(d *DataLink) { d.pressureless = p }
}

// WithLogger sets the link's logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *DataLink) { d.logger = l }
}

// New builds a link named name.
func New(name string, source *runner.SourceRunner, sink *runner.SinkRunner, opts ...Option) *DataLink {
	d := &DataLink{name: name, source: source, sink: sink}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get()
	}
	return d
}

// Name returns the link name.
func (d *DataLink) Name() string { return d.name }

// Pressureless reports whether the link bypasses the admission budget.
func (d *DataLink) Pressureless() bool { return d.pressureless }

// JobID returns the ledger job id of the link's rows.
func (d *DataLink) JobID() string { return d.source.Identity().JobID }

// IsRunning reports whether Run is in progress.
func (d *DataLink) IsRunning() bool { return d.running.Load() }

// Source returns the link's source runner.
func (d *DataLink) Source() *runner.SourceRunner { return d.source }

// Sink returns the link's sink runner.
func (d *DataLink) Sink() *runner.SinkRunner { return d.sink }

// Run pulls every unit from the source and pushes each successful pull to
// the sink. Skipped and failed pulls are counted and not pushed. The first
// fatal or ledger error stops the link; the stats gathered so far are
// returned with it.
func (d *DataLink) Run(ctx context.Context) (*Stats, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, errors.Newf(errors.ErrorTypeInternal, "data link %s is already running", d.name)
	}
	defer d.running.Store(false)

	metrics.RunningLinks.Inc()
	defer metrics.RunningLinks.Dec()

	ctx = logger.ContextWithLink(ctx, d.name, d.JobID())
	ctx, span := observability.StartSpan(ctx, "datalink.run")
	defer span.End()
	span.SetAttribute("link", d.name)

	log := logger.FromContext(ctx, d.logger)
	log.Info("starting data link", zap.Bool("pressureless", d.pressureless))

	start := time.Now()
	stats := &Stats{}
	err := d.run(ctx, stats)
	stats.Duration = time.Since(start)

	span.SetAttribute("records", stats.Records)
	span.RecordError(err)

	fields := []zap.Field{
		zap.Int("pulled", stats.Pulled),
		zap.Int("pushed", stats.Pushed),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("records", stats.Records),
		zap.Duration("duration", stats.Duration),
	}
	if err != nil {
		log.Error("data link failed", append(fields, zap.Error(err))...)
		return stats, err
	}
	log.Info("data link completed", fields...)
	return stats, nil
}

func (d *DataLink) run(ctx context.Context, stats *Stats) error {
	for p, err := range d.source.Consume(ctx) {
		if err != nil {
			return err
		}

		switch {
		case p.Skipped:
			stats.Skipped++
			continue
		case p.Failed():
			stats.Failed++
			continue
		}
		stats.Pulled++

		pushed, err := d.sink.Push(ctx, p)
		if pushed != nil {
			if pushed.Failed() {
				stats.Failed++
			} else {
				stats.Pushed++
				stats.Records += pushed.Result.Count
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Close releases both adapters.
func (d *DataLink) Close() error {
	return errors.Join(d.source.Close(), d.sink.Close())
}
