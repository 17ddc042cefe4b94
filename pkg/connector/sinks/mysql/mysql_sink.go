// Package mysql appends batches to a MySQL table with multi-row INSERTs in
// one transaction. The same sink is registered for sqlite.
package mysql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/registry"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

// Config is the mysql sink conf block.
type Config struct {
	Connection string `mapstructure:"connection"`
	Database   string `mapstructure:"database"`
	// Table defaults to the batch table.
	Table string `mapstructure:"table"`
}

// Sink appends rows to one table.
type Sink struct {
	cfg     Config
	db      *shared.DBHandle
	perStmt int
	logger  *zap.Logger
}

// Factory returns a sink factory for a dao backend.
func Factory(backend string) registry.SinkFactory {
	return func(params core.Params) (core.Sink, error) {
		var cfg Config
		if err := params.Decode(&cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid "+backend+" sink conf")
		}
		perStmt := params.Settings.QueryLimit
		if perStmt < 1 {
			perStmt = config.DefaultQueryLimit
		}
		log := params.Logger
		if log == nil {
			log = zap.NewNop()
		}
		return &Sink{
			cfg:     cfg,
			db:      &shared.DBHandle{Backend: backend, Connection: cfg.Connection, Params: params},
			perStmt: perStmt,
			logger:  log.With(zap.String("sink", params.Name)),
		}, nil
	}
}

// Table returns the target table for a batch.
func (s *Sink) Table(b *core.Batch) string {
	table := s.cfg.Table
	if table == "" && b != nil {
		table = b.Table
	}
	if s.cfg.Database != "" && table != "" {
		table = s.cfg.Database + "." + table
	}
	return table
}

// Write inserts the batch. Either every row lands or none does.
func (s *Sink) Write(ctx context.Context, req core.WriteRequest) (core.WriteResult, error) {
	table := s.Table(req.Batch)
	if table == "" {
		return core.WriteResult{}, errors.New(errors.ErrorTypeConfig, "no table configured and batch has none")
	}
	res := core.WriteResult{Entity: table}
	if req.Batch.Len() == 0 {
		return res, nil
	}

	db, err := s.db.Get(ctx)
	if err != nil {
		return core.WriteResult{}, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeConnection, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	cols := req.Batch.Columns
	for start := 0; start < len(req.Batch.Rows); start += s.perStmt {
		end := start + s.perStmt
		if end > len(req.Batch.Rows) {
			end = len(req.Batch.Rows)
		}
		rows := req.Batch.Rows[start:end]
		q := shared.InsertSQL(db.Dialect, table, cols, len(rows))
		if _, err := tx.ExecContext(ctx, q, shared.Flatten(rows, len(cols))...); err != nil {
			return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeQuery, "insert rows").WithDetail("table", table)
		}
	}
	if err := tx.Commit(); err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeConnection, "commit")
	}

	res.Count = req.Batch.Len()
	s.logger.Debug("rows inserted", zap.String("table", table), zap.Int("rows", res.Count))
	return res, nil
}

// Close closes the connection if one was opened.
func (s *Sink) Close() error { return s.db.Close() }
