package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/json"
)

// Kind tells the source runner how a source watermarks its data.
type Kind string

const (
	// KindDatabase sources watermark by value: the last row pulled becomes
	// the cursor of the next run.
	KindDatabase Kind = "database"
	// KindFile sources watermark by presence: entities already in the
	// processing history are skipped.
	KindFile Kind = "file"
)

// Unit is one addressable piece of work a source can fetch.
type Unit struct {
	// Entity is recorded as source_entity. For chunk units it is the parent
	// file, so all chunks of a file roll up under one logical entity.
	Entity string
	// Filter is recorded as source_filter; structured values are stored as JSON.
	Filter interface{}
	// CorrelationIn and CorrelationOut thread a trace id across stages.
	// Empty values are generated by the ledger.
	CorrelationIn  string
	CorrelationOut string
	// Table is the logical destination table, if the source knows one.
	Table string
	// Location is the adapter-specific address: a path, an object key, a query.
	Location string
}

// Cursor is the serialized last_record_pulled of the previous run. Empty
// means there is no watermark yet.
type Cursor string

// Value returns the cursor's value for column.
func (c Cursor) Value(column string) (interface{}, bool) {
	if c == "" {
		return nil, false
	}
	obj, err := json.DecodeObject(string(c))
	if err != nil {
		return nil, false
	}
	v, ok := obj[column]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Batch is the tabular payload moved from a source to a sink.
type Batch struct {
	Columns  []string
	Rows     [][]interface{}
	Table    string
	FileName string
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Record returns row i as a column → value map.
func (b *Batch) Record(i int) map[string]interface{} {
	rec := make(map[string]interface{}, len(b.Columns))
	for j, col := range b.Columns {
		if j < len(b.Rows[i]) {
			rec[col] = b.Rows[i][j]
		}
	}
	return rec
}

// Source extracts batches. Implementations are built per link and own their
// connections.
type Source interface {
	Kind() Kind
	// Discover lists the units to fetch in this run.
	Discover(ctx context.Context) ([]Unit, error)
	// Fetch pulls one unit. cursor is the unit entity's watermark.
	Fetch(ctx context.Context, unit Unit, cursor Cursor) (*Batch, error)
	Close() error
}

// Expander is implemented by sources that split one discovered unit into
// several, for example by chunking a file.
type Expander interface {
	Expand(ctx context.Context, unit Unit) ([]Unit, error)
}

// Tracked is implemented by sources whose entities are skipped once they
// appear in the processing history, unless Overwrite is true.
type Tracked interface {
	Overwrite() bool
}

// WriteRequest carries one batch to a sink.
type WriteRequest struct {
	Batch *Batch
	// CorrelationID is the source step's correlation_id_out. File sinks embed
	// it in the output name.
	CorrelationID string
	SourceEntity  string
}

// WriteResult describes what a sink wrote.
type WriteResult struct {
	Count  int
	Entity string
	Filter interface{}
}

// Sink loads batches.
type Sink interface {
	Write(ctx context.Context, req WriteRequest) (WriteResult, error)
	Close() error
}

// Params is what a factory receives to build an adapter.
type Params struct {
	Name     string
	Type     string
	PeerName string
	Conf     map[string]interface{}
	Settings config.Settings
	Profiles config.Profiles
	Logger   *zap.Logger
}

// Decode reads the conf map into out.
func (p Params) Decode(out interface{}) error {
	return config.Decode(p.Conf, out)
}

// Connection resolves a named connection from the profiles in the current
// environment.
func (p Params) Connection(name string) (map[string]interface{}, error) {
	if name == "" {
		return nil, fmt.Errorf("%s: connection is required", p.Name)
	}
	return p.Profiles.Connection(p.Settings.Env, name)
}
