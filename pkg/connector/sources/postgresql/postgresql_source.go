// Package postgresql pulls a table from PostgreSQL over a pgx pool,
// incrementally when a watermark column is configured.
package postgresql

import (
	"context"
	"database/sql/driver"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/dao"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

// Config is the postgresql source conf block.
type Config struct {
	Connection string           `mapstructure:"connection"`
	Schema     string           `mapstructure:"schema"`
	Table      string           `mapstructure:"table"`
	Watermark  shared.Watermark `mapstructure:"watermark"`
}

// Source reads one table.
type Source struct {
	cfg    Config
	params core.Params
	logger *zap.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New builds a postgresql source. The pool is opened on Discover.
func New(params core.Params) (core.Source, error) {
	cfg := Config{Schema: "public"}
	if err := params.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgresql source conf")
	}
	if cfg.Table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgresql source requires table")
	}
	log := params.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{cfg: cfg, params: params, logger: log.With(zap.String("source", params.Name))}, nil
}

// Kind implements core.Source.
func (s *Source) Kind() core.Kind { return core.KindDatabase }

func (s *Source) connect(ctx context.Context) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return s.pool, nil
	}
	pool, err := shared.OpenPGPool(ctx, s.params, s.cfg.Connection)
	if err != nil {
		return nil, err
	}
	s.pool = pool
	return pool, nil
}

// Discover connects and returns the table as the only unit.
func (s *Source) Discover(ctx context.Context) ([]core.Unit, error) {
	if _, err := s.connect(ctx); err != nil {
		return nil, err
	}
	table := s.cfg.Schema + "." + s.cfg.Table
	return []core.Unit{{
		Entity:   table,
		Table:    table,
		Location: table,
	}}, nil
}

// Fetch runs the pull query above the watermark bound, if any.
func (s *Source) Fetch(ctx context.Context, unit core.Unit, cursor core.Cursor) (*core.Batch, error) {
	pool, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	backend, err := dao.Lookup("postgres")
	if err != nil {
		return nil, err
	}
	q, args := shared.SelectSQL(backend.Dialect, unit.Location, s.cfg.Watermark, cursor)

	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(dao.ClassifyPostgres(err), errors.ErrorTypeQuery, "postgresql pull").
			WithDetail("table", unit.Entity)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	b := &core.Batch{Columns: make([]string, len(fields)), Table: unit.Table}
	for i, f := range fields {
		b.Columns[i] = f.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read row values")
		}
		for i, v := range vals {
			vals[i] = plain(v)
		}
		b.Rows = append(b.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "error iterating rows")
	}
	return b, nil
}

// plain turns pgtype values (numeric, uuid, intervals) into driver values so
// they render and serialize as text.
func plain(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case driver.Valuer:
		if dv, err := t.Value(); err == nil {
			return dv
		}
	case [16]byte:
		return uuid.UUID(t).String()
	}
	return v
}

// Close closes the pool if one was opened.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}
