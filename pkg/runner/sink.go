package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/ledger"
	"github.com/ajitpratap0/hdm/pkg/logger"
	"github.com/ajitpratap0/hdm/pkg/metrics"
	"github.com/ajitpratap0/hdm/pkg/observability"
)

// SinkRunner pushes pulled batches to a sink adapter and records every push
// in the ledger.
type SinkRunner struct {
	sink   core.Sink
	ledger *ledger.Ledger
	opts   options
}

// NewSinkRunner wraps sink.
func NewSinkRunner(sink core.Sink, l *ledger.Ledger, opts ...Option) *SinkRunner {
	o := buildOptions(opts)
	if o.adapterType == "" {
		o.adapterType = l.Identity().Sink.Type
	}
	return &SinkRunner{sink: sink, ledger: l, opts: o}
}

// Sink returns the wrapped adapter.
func (r *SinkRunner) Sink() core.Sink {
	return r.sink
}

// Push writes p to the sink. The row registered by the source step for the
// same entity and filter is moved to sinking pre-push and then to sinking
// post-push; without one, a new row is inserted.
//
// Adapter errors are recorded as a failure and handed to the error handler.
// Ledger errors are returned.
func (r *SinkRunner) Push(ctx context.Context, p *Pulled) (*Pushed, error) {
	ctx, span := observability.StartSpan(ctx, "sink.push")
	defer span.End()
	span.SetAttribute("sink.type", r.opts.adapterType)
	span.SetAttribute("entity", p.Unit.Entity)

	log := logger.FromContext(ctx, r.opts.logger).With(zap.String("entity", p.Unit.Entity))

	var filter interface{} = p.Unit.Filter
	if p.Record != nil {
		filter = p.Record.SourceFilter
	}

	current, err := r.ledger.CurrentState(ctx, p.Unit.Entity, filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var pre *ledger.StateRecord
	if current != nil {
		e := current.Entry()
		e.Action = ledger.ActionPrePush
		e.Status = ledger.StatusInProgress
		e.SinkingStartTime = now()
		pre, err = r.ledger.Update(ctx, current.StateID, e)
	} else {
		pre, err = r.ledger.Insert(ctx, ledger.Entry{
			Action:           ledger.ActionPrePush,
			Status:           ledger.StatusInProgress,
			SourceEntity:     p.Unit.Entity,
			SourceFilter:     filter,
			CorrelationIDIn:  p.Unit.CorrelationIn,
			CorrelationIDOut: p.Unit.CorrelationIn,
			SinkingStartTime: now(),
		})
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	batch := p.Batch
	if batch == nil {
		batch = &core.Batch{Table: p.Unit.Table}
	}
	res, writeErr := r.sink.Write(ctx, core.WriteRequest{
		Batch:         batch,
		CorrelationID: pre.CorrelationIDOut,
		SourceEntity:  p.Unit.Entity,
	})

	post := pre.Entry()
	post.Action = ledger.ActionPostPush
	post.SinkingEndTime = now()
	post.SinkEntity = res.Entity
	post.SinkFilter = res.Filter
	if writeErr != nil {
		post.Status = ledger.StatusFailure
		post.RecordCount = nil
	} else {
		post.Status = ledger.StatusSuccess
		post.RecordCount = ledger.Count(res.Count)
	}

	rec, err := r.ledger.Update(ctx, pre.StateID, post)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	metrics.Steps.WithLabelValues(string(rec.Action), string(rec.Status), r.opts.adapterType).Inc()

	out := &Pushed{Record: rec, Result: res, Err: writeErr}
	if writeErr != nil {
		span.RecordError(writeErr)
		if err := r.opts.errorHandler(ctx, p.Unit, writeErr); err != nil {
			return out, err
		}
		return out, nil
	}

	metrics.Records.WithLabelValues(metrics.Pushed, r.opts.adapterType).Add(float64(res.Count))
	span.SetAttribute("records", res.Count)
	span.RecordError(nil)
	log.Debug("pushed unit",
		zap.String("state_id", rec.StateID),
		zap.String("sink_entity", res.Entity),
		zap.Int("records", res.Count))
	return out, nil
}

// Close closes the wrapped adapter.
func (r *SinkRunner) Close() error {
	if err := r.sink.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "close sink")
	}
	return nil
}
