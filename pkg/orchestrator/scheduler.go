package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/hdm/pkg/datalink"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/logger"
	"github.com/ajitpratap0/hdm/pkg/metrics"
	"github.com/ajitpratap0/hdm/pkg/observability"
)

// LinkResult is the outcome of one link.
type LinkResult struct {
	Name         string
	JobID        string
	Pressureless bool
	Stats        *datalink.Stats
	Err          error
}

// Summary reports a run.
type Summary struct {
	RunID     string
	Links     int
	Succeeded int
	Failed    int
	// Step counts summed over every link.
	Pulled      int
	Pushed      int
	Skipped     int
	FailedSteps int
	Records     int
	Results     []LinkResult
}

// Run executes the built links and blocks until all of them have finished.
// The returned error joins the errors of every failed link.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	if len(o.links) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "no data links to run")
	}

	ctx = logger.ContextWithRun(ctx, o.runID)
	ctx, span := observability.StartSpan(ctx, "orchestrator.run")
	defer span.End()
	span.SetAttribute("links", len(o.links))
	span.SetAttribute("back_pressure_factor", o.budget)

	results := make([]LinkResult, len(o.links))
	run := func(i int, link *datalink.DataLink) {
		stats, err := link.Run(ctx)
		results[i] = LinkResult{Name: link.Name(), JobID: link.JobID(), Pressureless: link.Pressureless(), Stats: stats, Err: err}
	}

	for i, link := range o.links {
		if link.Pressureless() {
			run(i, link)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(o.budget)
	for i, link := range o.links {
		if link.Pressureless() {
			continue
		}
		timer := metrics.NewTimer()
		g.Go(func() error {
			// The slot is held from here on; memory is checked with it.
			if err := o.waitForMemory(ctx); err != nil {
				results[i] = LinkResult{Name: link.Name(), JobID: link.JobID(), Err: err}
				return nil
			}
			metrics.AdmissionWait.Observe(timer.Stop().Seconds())
			run(i, link)
			return nil
		})
	}
	_ = g.Wait()

	summary := o.summarize(results)
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, errors.Wrap(r.Err, errors.ErrorTypeInternal, "data link "+r.Name))
		}
	}
	err := errors.Join(errs...)
	span.RecordError(err)

	o.logger.Info("run completed",
		zap.Int("links", summary.Links),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("records", summary.Records))
	return summary, err
}

func (o *Orchestrator) summarize(results []LinkResult) *Summary {
	s := &Summary{RunID: o.runID, Links: len(results), Results: results}
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
		} else {
			s.Succeeded++
		}
		if r.Stats == nil {
			continue
		}
		s.Pulled += r.Stats.Pulled
		s.Pushed += r.Stats.Pushed
		s.Skipped += r.Stats.Skipped
		s.FailedSteps += r.Stats.Failed
		s.Records += r.Stats.Records
	}
	return s
}

// waitForMemory holds admission while host memory use is at or above the
// configured ceiling. A failing probe does not hold admission.
func (o *Orchestrator) waitForMemory(ctx context.Context) error {
	if o.ceiling <= 0 {
		return nil
	}
	for {
		used, err := o.opts.MemoryProbe(ctx)
		if err != nil {
			o.logger.Warn("memory probe failed, admitting link", zap.Error(err))
			return nil
		}
		if used < o.ceiling {
			return nil
		}
		o.logger.Debug("memory above ceiling, holding admission",
			zap.Float64("used_percent", used),
			zap.Float64("ceiling_percent", o.ceiling))

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "admission cancelled")
		case <-time.After(o.opts.PollInterval):
		}
	}
}
