// Package runner executes the two halves of a data link against the state
// ledger. A SourceRunner pulls units from a source adapter and records a
// pre-pull and a post-pull transition for each; a SinkRunner pushes what was
// pulled and records the pre-push and post-push transitions on the same row.
package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/json"
	"github.com/ajitpratap0/hdm/pkg/ledger"
	"github.com/ajitpratap0/hdm/pkg/logger"
)

// Pulled is one element of a source runner's output.
type Pulled struct {
	Unit  core.Unit
	Batch *core.Batch
	// Record is the post-pull row. Nil when Skipped.
	Record *ledger.StateRecord
	// Skipped is set when the unit's entity is already in the processing
	// history and the source does not overwrite.
	Skipped bool
	// Err is the adapter error of a failed fetch.
	Err error
}

// Failed reports whether the fetch failed. Failed units are not pushed.
func (p *Pulled) Failed() bool {
	return p.Record != nil && p.Record.Status == ledger.StatusFailure
}

// Pushed is the outcome of one sink step.
type Pushed struct {
	Record *ledger.StateRecord
	Result core.WriteResult
	Err    error
}

// Failed reports whether the write failed.
func (p *Pushed) Failed() bool {
	return p.Record != nil && p.Record.Status == ledger.StatusFailure
}

// ErrorHandler decides what a failed adapter step means for the run. A nil
// return records the failure and moves on; an error stops the runner.
type ErrorHandler func(ctx context.Context, unit core.Unit, err error) error

// LogErrors is the default ErrorHandler: it logs the failure and stops only
// on fatal errors.
func LogErrors(log *zap.Logger) ErrorHandler {
	return func(ctx context.Context, unit core.Unit, err error) error {
		logger.FromContext(ctx, log).Error("step failed",
			zap.String("entity", unit.Entity),
			zap.Any("filter", unit.Filter),
			zap.Error(err))
		if errors.IsFatal(err) {
			return err
		}
		return nil
	}
}

// Option configures a runner.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	errorHandler ErrorHandler
	adapterType  string
}

// WithLogger sets the runner's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithErrorHandler replaces LogErrors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.errorHandler = h }
}

// WithAdapterType sets the type label used in metrics and spans.
func WithAdapterType(t string) Option {
	return func(o *options) { o.adapterType = t }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}
	if o.errorHandler == nil {
		o.errorHandler = LogErrors(o.logger)
	}
	return o
}

// snapshotLayout renders time values in first/last record snapshots.
const snapshotLayout = "2006-01-02 15:04:05.999999"

// snapshot serializes row i of b as a column → value JSON object.
func snapshot(b *core.Batch, i int) (string, error) {
	rec := b.Record(i)
	for k, v := range rec {
		switch t := v.(type) {
		case []byte:
			rec[k] = string(t)
		case time.Time:
			rec[k] = t.Format(snapshotLayout)
		}
	}
	return json.MarshalString(rec)
}

func now() *time.Time {
	return ledger.Time(time.Now().UTC())
}
