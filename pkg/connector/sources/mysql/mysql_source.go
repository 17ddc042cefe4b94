// Package mysql pulls a table from MySQL, incrementally when a watermark
// column is configured.
package mysql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

// Config is the mysql source conf block.
type Config struct {
	Connection string           `mapstructure:"connection"`
	Database   string           `mapstructure:"database"`
	Table      string           `mapstructure:"table"`
	Watermark  shared.Watermark `mapstructure:"watermark"`
}

// Source reads one table.
type Source struct {
	cfg    Config
	db     *shared.DBHandle
	logger *zap.Logger
}

// New builds a mysql source. The connection is opened on Discover.
func New(params core.Params) (core.Source, error) {
	var cfg Config
	if err := params.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid mysql source conf")
	}
	if cfg.Table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mysql source requires table")
	}
	log := params.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		cfg:    cfg,
		db:     &shared.DBHandle{Backend: "mysql", Connection: cfg.Connection, Params: params},
		logger: log.With(zap.String("source", params.Name)),
	}, nil
}

// Kind implements core.Source.
func (s *Source) Kind() core.Kind { return core.KindDatabase }

func (s *Source) table() string {
	if s.cfg.Database == "" {
		return s.cfg.Table
	}
	return s.cfg.Database + "." + s.cfg.Table
}

// Discover connects and returns the table as the only unit.
func (s *Source) Discover(ctx context.Context) ([]core.Unit, error) {
	_, err := s.db.Get(ctx)
	if err != nil {
		return nil, err
	}
	return []core.Unit{{
		Entity:   s.table(),
		Table:    s.table(),
		Location: s.table(),
	}}, nil
}

// Fetch runs the pull query above the watermark bound, if any.
func (s *Source) Fetch(ctx context.Context, unit core.Unit, cursor core.Cursor) (*core.Batch, error) {
	db, err := s.db.Get(ctx)
	if err != nil {
		return nil, err
	}

	q, args := shared.SelectSQL(db.Dialect, unit.Location, s.cfg.Watermark, cursor)
	s.logger.Debug("pulling", zap.String("query", q), zap.Any("args", args))

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mysql pull").WithDetail("table", unit.Entity)
	}
	return shared.ScanRows(rows)
}

// Close closes the connection if one was opened.
func (s *Source) Close() error { return s.db.Close() }
