package runner

import (
	"context"
	"iter"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/ledger"
	"github.com/ajitpratap0/hdm/pkg/logger"
	"github.com/ajitpratap0/hdm/pkg/metrics"
	"github.com/ajitpratap0/hdm/pkg/observability"
)

// SourceRunner pulls from a source adapter and records every pull in the
// ledger.
type SourceRunner struct {
	source core.Source
	ledger *ledger.Ledger
	opts   options
}

// NewSourceRunner wraps source.
func NewSourceRunner(source core.Source, l *ledger.Ledger, opts ...Option) *SourceRunner {
	o := buildOptions(opts)
	if o.adapterType == "" {
		o.adapterType = l.Identity().Source.Type
	}
	return &SourceRunner{source: source, ledger: l, opts: o}
}

// Source returns the wrapped adapter.
func (r *SourceRunner) Source() core.Source {
	return r.source
}

// Identity returns the ledger identity the runner stamps on its rows.
func (r *SourceRunner) Identity() ledger.Identity {
	return r.ledger.Identity()
}

// Consume discovers the source's units and pulls them one at a time, as the
// caller ranges over the sequence. Nothing is fetched ahead of the caller.
//
// A ledger error, a discovery error or an error returned by the error
// handler is yielded as the last element.
func (r *SourceRunner) Consume(ctx context.Context) iter.Seq2[*Pulled, error] {
	return func(yield func(*Pulled, error) bool) {
		log := logger.FromContext(ctx, r.opts.logger)

		units, err := r.source.Discover(ctx)
		if err != nil {
			yield(nil, errors.Wrap(err, errors.ErrorTypeData, "discover units"))
			return
		}
		log.Debug("discovered units", zap.Int("units", len(units)))

		var (
			history   map[string]struct{}
			skipSeen  bool
			expander  core.Expander
			expanding bool
		)
		if t, ok := r.source.(core.Tracked); ok && !t.Overwrite() {
			history, err = r.ledger.ProcessingHistory(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			skipSeen = true
		}
		expander, expanding = r.source.(core.Expander)

		for _, unit := range units {
			if err := ctx.Err(); err != nil {
				yield(nil, errors.Wrap(err, errors.ErrorTypeTimeout, "consume cancelled"))
				return
			}

			if skipSeen {
				if _, seen := history[unit.Entity]; seen {
					log.Info("skipping processed entity", zap.String("entity", unit.Entity))
					if !yield(&Pulled{Unit: unit, Skipped: true}, nil) {
						return
					}
					continue
				}
			}

			pieces := []core.Unit{unit}
			if expanding {
				pieces, err = expander.Expand(ctx, unit)
				if err != nil {
					log.Warn("failed to expand unit, skipping for this run",
						zap.String("entity", unit.Entity), zap.Error(err))
					continue
				}
			}

			for _, piece := range pieces {
				p, err := r.pull(ctx, piece)
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(p, nil) {
					return
				}
			}
		}
	}
}

// pull runs the pre-pull, fetch and post-pull steps of one unit.
func (r *SourceRunner) pull(ctx context.Context, unit core.Unit) (*Pulled, error) {
	ctx, span := observability.StartSpan(ctx, "source.pull")
	defer span.End()
	span.SetAttribute("source.type", r.opts.adapterType)
	span.SetAttribute("entity", unit.Entity)

	log := logger.FromContext(ctx, r.opts.logger).With(zap.String("entity", unit.Entity))

	cursor, _, err := r.ledger.LastRecord(ctx, unit.Entity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	pre, err := r.ledger.Insert(ctx, ledger.Entry{
		Action:            ledger.ActionPrePull,
		Status:            ledger.StatusInProgress,
		SourceEntity:      unit.Entity,
		SourceFilter:      unit.Filter,
		CorrelationIDIn:   unit.CorrelationIn,
		CorrelationIDOut:  unit.CorrelationOut,
		SourcingStartTime: now(),
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	batch, fetchErr := r.source.Fetch(ctx, unit, core.Cursor(cursor))

	post := pre.Entry()
	post.Action = ledger.ActionPostPull
	post.SourcingEndTime = now()
	post.LastRecordPulled = cursor

	if fetchErr == nil {
		if batch == nil {
			batch = &core.Batch{}
		}
		if batch.Table == "" {
			batch.Table = unit.Table
		}
		post.Status = ledger.StatusSuccess
		post.RecordCount = ledger.Count(batch.Len())
		if r.source.Kind() == core.KindDatabase && batch.Len() > 0 {
			if post.FirstRecordPulled, fetchErr = snapshot(batch, 0); fetchErr == nil {
				post.LastRecordPulled, fetchErr = snapshot(batch, batch.Len()-1)
			}
			if fetchErr != nil {
				fetchErr = errors.Wrap(fetchErr, errors.ErrorTypeData, "snapshot records")
				post.FirstRecordPulled, post.LastRecordPulled = "", cursor
			}
		}
	}
	if fetchErr != nil {
		post.Status = ledger.StatusFailure
		post.RecordCount = nil
		batch = nil
	}

	rec, err := r.ledger.Update(ctx, pre.StateID, post)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	metrics.Steps.WithLabelValues(string(rec.Action), string(rec.Status), r.opts.adapterType).Inc()
	p := &Pulled{Unit: unit, Batch: batch, Record: rec, Err: fetchErr}

	if fetchErr != nil {
		span.RecordError(fetchErr)
		if err := r.opts.errorHandler(ctx, unit, fetchErr); err != nil {
			return nil, err
		}
		return p, nil
	}

	metrics.Records.WithLabelValues(metrics.Pulled, r.opts.adapterType).Add(float64(batch.Len()))
	span.SetAttribute("records", batch.Len())
	span.RecordError(nil)
	log.Debug("pulled unit",
		zap.String("state_id", rec.StateID),
		zap.Int("records", batch.Len()))
	return p, nil
}

// Close closes the wrapped adapter.
func (r *SourceRunner) Close() error {
	if err := r.source.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "close source")
	}
	return nil
}
