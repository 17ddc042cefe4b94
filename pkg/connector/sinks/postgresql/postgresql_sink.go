// Package postgresql loads batches into a PostgreSQL table with COPY.
package postgresql

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/dao"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

// Config is the postgresql sink conf block.
type Config struct {
	Connection string `mapstructure:"connection"`
	Schema     string `mapstructure:"schema"`
	// Table defaults to the batch table.
	Table string `mapstructure:"table"`
}

// Sink copies rows into one table.
type Sink struct {
	cfg    Config
	params core.Params
	logger *zap.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New builds a postgresql sink. The pool is opened on the first Write.
func New(params core.Params) (core.Sink, error) {
	cfg := Config{Schema: "public"}
	if err := params.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgresql sink conf")
	}
	log := params.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{cfg: cfg, params: params, logger: log.With(zap.String("sink", params.Name))}, nil
}

// Identifier returns the target table for a batch. A batch table that is
// already schema-qualified keeps its schema.
func (s *Sink) Identifier(b *core.Batch) pgx.Identifier {
	table := s.cfg.Table
	if table == "" && b != nil {
		table = b.Table
	}
	if table == "" {
		return nil
	}
	id := pgx.Identifier{s.cfg.Schema, table}
	if schema, name, ok := strings.Cut(table, "."); ok && s.cfg.Table == "" {
		id = pgx.Identifier{schema, name}
	}
	return id
}

func (s *Sink) connect(ctx context.Context) (*pgxpool.Pool, error) {
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

// Write copies the batch.
func (s *Sink) Write(ctx context.Context, req core.WriteRequest) (core.WriteResult, error) {
	id := s.Identifier(req.Batch)
	if id == nil {
		return core.WriteResult{}, errors.New(errors.ErrorTypeConfig, "no table configured and batch has none")
	}
	res := core.WriteResult{Entity: id.Sanitize()}
	if req.Batch.Len() == 0 {
		return res, nil
	}

	pool, err := s.connect(ctx)
	if err != nil {
		return core.WriteResult{}, err
	}
	n, err := pool.CopyFrom(ctx, id, req.Batch.Columns, pgx.CopyFromRows(req.Batch.Rows))
	if err != nil {
		return core.WriteResult{}, errors.Wrap(dao.ClassifyPostgres(err), errors.ErrorTypeQuery, "copy rows").
			WithDetail("table", res.Entity)
	}

	res.Count = int(n)
	s.logger.Debug("rows copied", zap.String("table", res.Entity), zap.Int64("rows", n))
	return res, nil
}

// Close closes the pool if one was opened.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}
