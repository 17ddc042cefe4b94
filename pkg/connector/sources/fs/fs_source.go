// Package fs reads CSV files from a local directory tree. Each file is one
// unit; the folder it sits in names its table.
package fs

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/chunk"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

// Config is the fs source conf block.
type Config struct {
	Directory  string `mapstructure:"directory"`
	FileFormat string `mapstructure:"file_format"`
	Overwrite  bool   `mapstructure:"overwrite"`
}

// Source lists and reads files under Config.Directory.
type Source struct {
	cfg     Config
	prefix  string
	archive string
	logger  *zap.Logger
}

// New builds an fs source from params.
func New(params core.Params) (core.Source, error) {
	var cfg Config
	if err := params.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid fs source conf")
	}
	if cfg.Directory == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "fs source requires directory")
	}
	if cfg.FileFormat == "" {
		cfg.FileFormat = "csv"
	}
	if cfg.FileFormat != "csv" {
		return nil, errors.Newf(errors.ErrorTypeCapability, "Unknown input type: %s", cfg.FileFormat)
	}
	log := params.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		cfg:     cfg,
		prefix:  shared.FilePrefix(params.Settings),
		archive: shared.ArchiveFolder(params.Settings),
		logger:  log.With(zap.String("source", params.Name)),
	}, nil
}

// Kind implements core.Source.
func (s *Source) Kind() core.Kind { return core.KindFile }

// Overwrite implements core.Tracked.
func (s *Source) Overwrite() bool { return s.cfg.Overwrite }

// Discover lists the data files in lexical path order.
func (s *Source) Discover(_ context.Context) ([]core.Unit, error) {
	files, err := shared.WalkFiles(s.cfg.Directory, s.archive, s.cfg.FileFormat)
	if err != nil {
		return nil, err
	}

	units := make([]core.Unit, 0, len(files))
	for _, f := range files {
		u := core.Unit{
			Entity:   f.Name,
			Table:    f.Table,
			Location: f.Path,
		}
		if id, ok := chunk.CorrelationID(s.prefix, f.Name); ok {
			u.CorrelationIn = id
		}
		units = append(units, u)
	}
	s.logger.Debug("discovered files", zap.Int("count", len(units)))
	return units, nil
}

// Fetch reads the unit's file.
func (s *Source) Fetch(_ context.Context, unit core.Unit, _ core.Cursor) (*core.Batch, error) {
	b, err := shared.ReadCSVFile(unit.Location)
	if err != nil {
		return nil, err
	}
	b.Table = unit.Table
	b.FileName = filepath.Base(unit.Location)
	return b, nil
}

// Close implements core.Source.
func (s *Source) Close() error { return nil }
