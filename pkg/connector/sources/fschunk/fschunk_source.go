// Package fschunk splits large CSV files into chunks before they are pulled.
// The source scans <directory>/<source name>, writes chunks into
// <directory>/<sink name>/<table folder> and archives each original.
package fschunk

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/chunk"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/strings"
)

// DefaultChunkSize is used when the conf has no chunk value.
const DefaultChunkSize = 100000

// Config is the fs_chunk conf block.
type Config struct {
	Directory  string `mapstructure:"directory"`
	Chunk      int    `mapstructure:"chunk"`
	FileFormat string `mapstructure:"file_format"`
}

// Source discovers whole files and expands each into its chunks.
type Source struct {
	cfg     Config
	root    string
	dest    string
	chunker *chunk.Chunker
	logger  *zap.Logger
}

// New builds an fs_chunk source from params.
func New(params core.Params) (core.Source, error) {
	cfg := Config{Chunk: DefaultChunkSize, FileFormat: "csv"}
	if err := params.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid fs_chunk source conf")
	}
	if cfg.Directory == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "fs_chunk source requires directory")
	}
	if cfg.FileFormat != "csv" {
		return nil, errors.Newf(errors.ErrorTypeCapability, "Unknown input type: %s", cfg.FileFormat)
	}
	if cfg.Chunk < 1 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "chunk must be positive, got %d", cfg.Chunk)
	}
	if params.PeerName == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "fs_chunk source requires a sink to chunk into")
	}

	log := params.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		cfg:  cfg,
		root: filepath.Join(cfg.Directory, params.Name),
		dest: filepath.Join(cfg.Directory, params.PeerName),
		chunker: &chunk.Chunker{
			Size:          cfg.Chunk,
			Prefix:        shared.FilePrefix(params.Settings),
			ArchiveFolder: shared.ArchiveFolder(params.Settings),
		},
		logger: log.With(zap.String("source", params.Name)),
	}, nil
}

// Kind implements core.Source.
func (s *Source) Kind() core.Kind { return core.KindFile }

// Overwrite implements core.Tracked. Chunked files are archived once split,
// so they are never pulled again.
func (s *Source) Overwrite() bool { return false }

// Discover lists the files waiting to be chunked.
func (s *Source) Discover(_ context.Context) ([]core.Unit, error) {
	files, err := shared.WalkFiles(s.root, s.chunker.ArchiveFolder, s.cfg.FileFormat)
	if err != nil {
		return nil, err
	}
	units := make([]core.Unit, 0, len(files))
	for _, f := range files {
		units = append(units, core.Unit{Entity: f.Name, Table: f.Table, Location: f.Path})
	}
	return units, nil
}

// Expand splits the unit's file and archives it. Every chunk keeps the
// parent file as its entity so the file is tracked as one.
func (s *Source) Expand(ctx context.Context, unit core.Unit) ([]core.Unit, error) {
	destDir := s.dest
	if unit.Table != "" {
		destDir = filepath.Join(destDir, strings.TableToFolder(unit.Table))
	}

	res, err := s.chunker.Split(ctx, unit.Location, destDir)
	if err != nil {
		return nil, err
	}
	if _, err := s.chunker.Archive(unit.Location); err != nil {
		// The original stays in place, so the next run splits it again.
		for _, f := range res.Files {
			if f != unit.Location {
				_ = os.Remove(f)
			}
		}
		return nil, err
	}
	s.logger.Info("file chunked",
		zap.String("file", unit.Entity),
		zap.Int("chunks", len(res.Files)),
		zap.Int("rows", res.Rows),
		zap.Bool("copied", res.Copied))

	units := make([]core.Unit, 0, len(res.Files))
	for i, path := range res.Files {
		name := filepath.Base(path)
		u := core.Unit{
			Entity:   unit.Entity,
			Filter:   map[string]interface{}{"chunk": name, "seq": i},
			Table:    unit.Table,
			Location: path,
		}
		if id, ok := chunk.CorrelationID(s.chunker.Prefix, name); ok {
			u.CorrelationOut = id
		}
		units = append(units, u)
	}
	return units, nil
}

// Fetch reads one chunk.
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
