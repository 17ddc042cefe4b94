// Package fs writes batches as CSV files under a local directory.
package fs

import (
	"context"
	"os"
	"path/filepath"
	stdstrings "strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/chunk"
	"github.com/ajitpratap0/hdm/pkg/compression"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/strings"
)

// Config is the fs sink conf block.
type Config struct {
	Directory   string `mapstructure:"directory"`
	FileFormat  string `mapstructure:"file_format"`
	Compression string `mapstructure:"compression"`
	FileName    string `mapstructure:"file_name"`
}

// Sink writes one file per batch.
type Sink struct {
	cfg    Config
	name   string
	prefix string
	algo   compression.Algorithm
	logger *zap.Logger
}

// New builds an fs sink. The directory must exist.
func New(params core.Params) (core.Sink, error) {
	cfg := Config{FileFormat: "csv"}
	if err := params.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid fs sink conf")
	}
	if cfg.Directory == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "fs sink requires directory")
	}
	dir, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "resolve sink directory")
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, errors.Newf(errors.ErrorTypeConfig, "Unable to create Sink landing at %s", dir)
	}
	cfg.Directory = dir

	algo, err := compression.Parse(cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCapability, "unsupported compression")
	}

	log := params.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{
		cfg:    cfg,
		name:   params.Name,
		prefix: shared.FilePrefix(params.Settings),
		algo:   algo,
		logger: log.With(zap.String("sink", params.Name)),
	}, nil
}

// Directory returns where a batch for table is written.
func (s *Sink) Directory(table string) string {
	if table == "" {
		return s.cfg.Directory
	}
	return filepath.Join(s.cfg.Directory, s.name, strings.TableToFolder(table))
}

// FileName picks the output name: the configured name, else the source
// file's name, else one built from the correlation id.
func (s *Sink) FileName(req core.WriteRequest) string {
	name := s.cfg.FileName
	if name == "" && req.Batch != nil {
		name = req.Batch.FileName
		if compression.FromExtension(name) != compression.None {
			name = stdstrings.TrimSuffix(name, filepath.Ext(name))
		}
	}
	if name == "" {
		name = chunk.FileName(s.prefix, req.CorrelationID)
	}
	return name + s.algo.Extension()
}

// Write stores the batch as CSV.
func (s *Sink) Write(_ context.Context, req core.WriteRequest) (core.WriteResult, error) {
	if s.cfg.FileFormat != "csv" {
		return core.WriteResult{}, errors.Newf(errors.ErrorTypeCapability, "Unknown output type: %s", s.cfg.FileFormat)
	}

	dir := s.Directory(req.Batch.Table)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeFile, "create destination directory")
	}
	name := s.FileName(req)
	path := filepath.Join(dir, name)

	if err := shared.WriteCSVFile(path, req.Batch, s.algo); err != nil {
		return core.WriteResult{}, err
	}
	s.logger.Debug("file written", zap.String("path", path), zap.Int("rows", req.Batch.Len()))
	return core.WriteResult{Count: req.Batch.Len(), Entity: name, Filter: dir}, nil
}

// Close implements core.Sink.
func (s *Sink) Close() error { return nil }
