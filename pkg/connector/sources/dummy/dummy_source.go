// Package dummy is a source that yields a single empty unit. It drives sinks
// that load from somewhere other than the batch, such as snowflake_copy.
package dummy

import (
	"context"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("dummy", New)
}

// Source is the dummy source.
type Source struct {
	table string
}

// New builds a dummy source. An optional table conf value is passed on to
// the sink.
func New(params core.Params) (core.Source, error) {
	var cfg struct {
		Table string `mapstructure:"table"`
	}
	if err := params.Decode(&cfg); err != nil {
		return nil, err
	}
	return &Source{table: cfg.Table}, nil
}

func (s *Source) Kind() core.Kind { return core.KindFile }

func (s *Source) Discover(context.Context) ([]core.Unit, error) {
	return []core.Unit{{Table: s.table}}, nil
}

func (s *Source) Fetch(context.Context, core.Unit, core.Cursor) (*core.Batch, error) {
	return &core.Batch{Table: s.table}, nil
}

func (s *Source) Close() error { return nil }
