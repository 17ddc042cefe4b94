// Package ledger records every state transition of every data-movement step
// in a persistent table, and answers the questions the runners ask of it:
// has this step been registered in this job, what was the last record pulled
// for an entity, which entities has a source already seen.
//
// A Ledger is a cheap per-link handle stamped with the link's identity over a
// Store shared by the whole run. It keeps no state between calls; every call
// is one read, or one write, against the store.
package ledger

import (
	"context"
	"encoding/hex"
	"runtime/debug"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/json"
	"github.com/ajitpratap0/hdm/pkg/metrics"
)

// Revision is the build revision stamped on every row. Set it with
// -ldflags "-X github.com/ajitpratap0/hdm/pkg/ledger.Revision=<sha>".
var Revision = ""

// Endpoint names one side of a link.
type Endpoint struct {
	Name string
	Type string
}

// Identity is what every row written through a Ledger carries.
type Identity struct {
	JobID        string
	RunID        string
	ManifestName string
	Source       Endpoint
	Sink         Endpoint
}

// Ledger is a per-link handle over a shared Store.
type Ledger struct {
	id     Identity
	store  Store
	logger *zap.Logger
}

// New returns a handle for id over store.
func New(store Store, id Identity, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{id: id, store: store, logger: logger.With(zap.String("component", "ledger"))}
}

// NewID returns a fresh opaque id (uuid4, hex without dashes).
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Identity returns the handle's identity.
func (l *Ledger) Identity() Identity {
	return l.id
}

// Insert persists a new row for e with a fresh state_id. An empty
// correlation_id_out is generated.
func (l *Ledger) Insert(ctx context.Context, e Entry) (*StateRecord, error) {
	defer metrics.ObserveLedger("insert", metrics.NewTimer())

	rec, err := l.build(NewID(), e)
	if err != nil {
		return nil, err
	}
	if rec.CorrelationIDOut == "" {
		rec.CorrelationIDOut = NewID()
	}

	l.logger.Debug("insert state",
		zap.String("state_id", rec.StateID),
		zap.String("action", string(rec.Action)),
		zap.String("entity", rec.SourceEntity))

	if err := l.store.Insert(ctx, rec); err != nil {
		return nil, wrap(err, "insert state").WithDetail("action", string(e.Action))
	}
	return rec, nil
}

// Update rewrites the row stateID with e. state_id and correlation_id_in of
// the stored row are preserved.
func (l *Ledger) Update(ctx context.Context, stateID string, e Entry) (*StateRecord, error) {
	defer metrics.ObserveLedger("update", metrics.NewTimer())

	rec, err := l.build(stateID, e)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("update state",
		zap.String("state_id", stateID),
		zap.String("action", string(rec.Action)),
		zap.String("status", string(rec.Status)))

	if err := l.store.Update(ctx, rec); err != nil {
		return nil, wrap(err, "update state").WithDetail("state_id", stateID)
	}
	return rec, nil
}

// CurrentState returns the most recent row of this job and source for
// entity and filter, or nil when the step has not been registered.
func (l *Ledger) CurrentState(ctx context.Context, entity string, filter interface{}) (*StateRecord, error) {
	defer metrics.ObserveLedger("current_state", metrics.NewTimer())

	f, err := json.MarshalString(filter)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "serialize source filter")
	}
	rec, err := l.store.Current(ctx, CurrentQuery{
		JobID:      l.id.JobID,
		SourceName: l.id.Source.Name,
		Entity:     entity,
		Filter:     f,
	})
	if err != nil {
		return nil, wrap(err, "get current state")
	}
	return rec, nil
}

// LastRecord returns the watermark cursor of entity under this manifest.
func (l *Ledger) LastRecord(ctx context.Context, entity string) (string, bool, error) {
	defer metrics.ObserveLedger("last_record", metrics.NewTimer())

	last, ok, err := l.store.LastRecord(ctx, l.id.ManifestName, entity)
	if err != nil {
		return "", false, wrap(err, "get last record")
	}
	return last, ok, nil
}

// ProcessingHistory returns the entities this source has recorded under
// this manifest.
func (l *Ledger) ProcessingHistory(ctx context.Context) (map[string]struct{}, error) {
	defer metrics.ObserveLedger("history", metrics.NewTimer())

	seen, err := l.store.History(ctx, l.id.Source.Name, l.id.ManifestName)
	if err != nil {
		return nil, wrap(err, "get processing history")
	}
	return seen, nil
}

func (l *Ledger) build(stateID string, e Entry) (*StateRecord, error) {
	sf, err := json.MarshalString(e.SourceFilter)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "serialize source filter")
	}
	kf, err := json.MarshalString(e.SinkFilter)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "serialize sink filter")
	}

	return &StateRecord{
		StateID:           stateID,
		JobID:             l.id.JobID,
		RunID:             l.id.RunID,
		ManifestName:      l.id.ManifestName,
		CorrelationIDIn:   e.CorrelationIDIn,
		CorrelationIDOut:  e.CorrelationIDOut,
		Action:            e.Action,
		Status:            e.Status,
		SourceEntity:      e.SourceEntity,
		SourceFilter:      sf,
		SinkEntity:        e.SinkEntity,
		SinkFilter:        kf,
		RecordCount:       e.RecordCount,
		FirstRecordPulled: e.FirstRecordPulled,
		LastRecordPulled:  e.LastRecordPulled,
		SourcingStartTime: e.SourcingStartTime,
		SourcingEndTime:   e.SourcingEndTime,
		SinkingStartTime:  e.SinkingStartTime,
		SinkingEndTime:    e.SinkingEndTime,
		SourceName:        l.id.Source.Name,
		SourceType:        l.id.Source.Type,
		SinkName:          l.id.Sink.Name,
		SinkType:          l.id.Sink.Type,
		GitSHA:            revision(),
		UpdatedOn:         l.store.Now(),
	}, nil
}

// wrap marks a store failure as a ledger connection error.
func wrap(err error, msg string) *errors.Error {
	return errors.Wrap(err, errors.ErrorTypeConnection, msg).WithDetail("ledger", true)
}

// revision resolves the revision marker: the linker-set value, else the VCS
// revision recorded in the build, else "unknown".
func revision() string {
	if Revision != "" {
		return Revision
	}
	return buildRevision
}

var buildRevision = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 7 {
				return s.Value[:7]
			}
			return s.Value
		}
	}
	return "unknown"
}()
