// Package snowflake loads batches into Snowflake in two steps: the internal
// stage sink PUTs gzipped CSV files into a stage, and the copy sink runs
// COPY INTO from that stage.
package snowflake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	stdstrings "strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/compression"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/strings"
)

// Config is shared by both sinks.
type Config struct {
	Connection string `mapstructure:"connection"`
	StageName  string `mapstructure:"stage_name"`
	// TableName defaults to the batch table.
	TableName  string `mapstructure:"table_name"`
	FileFormat string `mapstructure:"file_format"`
	Pattern    string `mapstructure:"pattern"`
}

type sink struct {
	cfg    Config
	db     *shared.DBHandle
	logger *zap.Logger
}

func newSink(params core.Params, kind string) (*sink, error) {
	var cfg Config
	if err := params.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid "+kind+" conf")
	}
	if cfg.StageName == "" {
		return nil, errors.New(errors.ErrorTypeConfig, kind+" requires stage_name")
	}
	log := params.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &sink{
		cfg:    cfg,
		db:     &shared.DBHandle{Backend: "snowflake", Connection: cfg.Connection, Params: params},
		logger: log.With(zap.String("sink", params.Name)),
	}, nil
}

func (s *sink) table(b *core.Batch) (string, error) {
	if s.cfg.TableName != "" {
		return s.cfg.TableName, nil
	}
	if b != nil && b.Table != "" {
		return b.Table, nil
	}
	return "", errors.New(errors.ErrorTypeConfig, "no table_name configured and batch has none")
}

func (s *sink) Close() error { return s.db.Close() }

// InternalStage PUTs each batch into a Snowflake internal stage.
type InternalStage struct {
	*sink
}

// NewInternalStage builds a snowflake_internal_stage sink.
func NewInternalStage(params core.Params) (core.Sink, error) {
	s, err := newSink(params, "snowflake_internal_stage")
	if err != nil {
		return nil, err
	}
	return &InternalStage{sink: s}, nil
}

// StagedFileName is the name a batch is staged under. The correlation id
// keeps chunks of one table apart in the stage.
func StagedFileName(table, correlationID string) string {
	name := strings.TableToFolder(table)
	if correlationID != "" {
		name += "_" + correlationID
	}
	return name + ".csv" + compression.Gzip.Extension()
}

// CreateStageSQL creates the stage when missing.
func CreateStageSQL(stage string) string {
	return "CREATE STAGE IF NOT EXISTS " + stage
}

// PutSQL uploads a local file into the stage.
func PutSQL(path, stage string) string {
	return fmt.Sprintf("PUT file://%s @%s OVERWRITE = TRUE", filepath.ToSlash(path), stage)
}

// Write stages the batch as a gzipped CSV file.
func (s *InternalStage) Write(ctx context.Context, req core.WriteRequest) (core.WriteResult, error) {
	table, err := s.table(req.Batch)
	if err != nil {
		return core.WriteResult{}, err
	}

	tmp, err := os.MkdirTemp("", "hdm-stage-")
	if err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeFile, "create temp directory")
	}
	defer os.RemoveAll(tmp)

	path := filepath.Join(tmp, StagedFileName(table, req.CorrelationID))
	if err := shared.WriteCSVFile(path, req.Batch, compression.Gzip); err != nil {
		return core.WriteResult{}, err
	}

	db, err := s.db.Get(ctx)
	if err != nil {
		return core.WriteResult{}, err
	}
	if _, err := db.ExecContext(ctx, CreateStageSQL(s.cfg.StageName)); err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeQuery, "create stage").
			WithDetail("stage", s.cfg.StageName)
	}
	if _, err := db.ExecContext(ctx, PutSQL(path, s.cfg.StageName)); err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeQuery, "put file").
			WithDetail("stage", s.cfg.StageName)
	}

	s.logger.Info("batch staged",
		zap.String("stage", s.cfg.StageName),
		zap.String("file", filepath.Base(path)),
		zap.Int("rows", req.Batch.Len()))
	return core.WriteResult{
		Count:  req.Batch.Len(),
		Entity: s.cfg.StageName + "." + table,
		Filter: filepath.Base(path),
	}, nil
}

// Copy runs COPY INTO a table from the stage. It ignores the batch rows and
// is usually fed by the dummy source.
type Copy struct {
	*sink
}

// NewCopy builds a snowflake_copy sink.
func NewCopy(params core.Params) (core.Sink, error) {
	s, err := newSink(params, "snowflake_copy")
	if err != nil {
		return nil, err
	}
	if s.cfg.FileFormat == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "snowflake_copy requires file_format")
	}
	return &Copy{sink: s}, nil
}

// CopySQL builds the COPY INTO statement.
func CopySQL(table, stage, fileFormat, pattern string) string {
	q := fmt.Sprintf("COPY INTO %s FROM @%s FILE_FORMAT = (FORMAT_NAME = %s)", table, stage, fileFormat)
	if pattern != "" {
		q += " PATTERN = '" + stdstrings.ReplaceAll(pattern, "'", "''") + "'"
	}
	return q
}

// RowsLoaded sums the rows_loaded column of a COPY result. A result without
// that column, as returned when no files were processed, counts zero.
func RowsLoaded(b *core.Batch) (int, error) {
	col := -1
	for i, c := range b.Columns {
		if stdstrings.EqualFold(c, "rows_loaded") {
			col = i
			break
		}
	}
	if col < 0 {
		return 0, nil
	}
	total := 0
	for _, row := range b.Rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		n, err := strconv.Atoi(strings.ValueToString(row[col]))
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeData, "parse rows_loaded")
		}
		total += n
	}
	return total, nil
}

// Write runs the copy.
func (c *Copy) Write(ctx context.Context, req core.WriteRequest) (core.WriteResult, error) {
	table, err := c.table(req.Batch)
	if err != nil {
		return core.WriteResult{}, err
	}
	db, err := c.db.Get(ctx)
	if err != nil {
		return core.WriteResult{}, err
	}

	c.logger.Info("executing copy", zap.String("stage", c.cfg.StageName), zap.String("table", table))
	rows, err := db.QueryContext(ctx, CopySQL(table, c.cfg.StageName, c.cfg.FileFormat, c.cfg.Pattern))
	if err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeQuery, "copy into").WithDetail("table", table)
	}
	result, err := shared.ScanRows(rows)
	if err != nil {
		return core.WriteResult{}, err
	}
	n, err := RowsLoaded(result)
	if err != nil {
		return core.WriteResult{}, err
	}
	return core.WriteResult{Count: n, Entity: c.cfg.StageName + "." + table}, nil
}
