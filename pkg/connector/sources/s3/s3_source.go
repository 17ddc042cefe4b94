// Package s3 reads CSV objects from an S3 bucket. Each object key is one
// unit.
package s3

import (
	"context"
	"path"
	"sort"
	stdstrings "strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/chunk"
	"github.com/ajitpratap0/hdm/pkg/compression"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/strings"
)

// Config is the s3 source conf block.
type Config struct {
	Connection string `mapstructure:"connection"`
	BucketName string `mapstructure:"bucket_name"`
	Prefix     string `mapstructure:"prefix"`
	FileFormat string `mapstructure:"file_format"`
	Overwrite  bool   `mapstructure:"overwrite"`
}

// ObjectAPI is the part of the S3 client the source uses.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source lists and reads objects under Config.Prefix.
type Source struct {
	cfg     Config
	params  core.Params
	prefix  string
	archive string
	logger  *zap.Logger

	mu     sync.Mutex
	client ObjectAPI
}

// New builds an s3 source. The client is created on Discover.
func New(params core.Params) (core.Source, error) {
	cfg := Config{FileFormat: "csv"}
	if err := params.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid s3 source conf")
	}
	if cfg.BucketName == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "s3 source requires bucket_name")
	}
	log := params.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		cfg:     cfg,
		params:  params,
		prefix:  shared.FilePrefix(params.Settings),
		archive: shared.ArchiveFolder(params.Settings),
		logger:  log.With(zap.String("source", params.Name)),
	}, nil
}

// NewWithClient builds an s3 source over an existing client.
func NewWithClient(params core.Params, client ObjectAPI) (*Source, error) {
	src, err := New(params)
	if err != nil {
		return nil, err
	}
	s := src.(*Source)
	s.client = client
	return s, nil
}

// Kind implements core.Source.
func (s *Source) Kind() core.Kind { return core.KindFile }

// Overwrite implements core.Tracked.
func (s *Source) Overwrite() bool { return s.cfg.Overwrite }

func (s *Source) api(ctx context.Context) (ObjectAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	conn, err := s.params.Connection(s.cfg.Connection)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "resolve connection")
	}
	client, err := shared.NewS3Client(ctx, conn)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

// Discover lists the data objects under the prefix in key order. Keys inside
// an archive folder are skipped.
func (s *Source) Discover(ctx context.Context) ([]core.Unit, error) {
	client, err := s.api(ctx)
	if err != nil {
		return nil, err
	}

	var keys []string
	p := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.BucketName),
		Prefix: aws.String(s.cfg.Prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "list objects").
				WithDetail("bucket", s.cfg.BucketName)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !shared.HasFormat(key, s.cfg.FileFormat) || s.archived(key) {
				continue
			}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	units := make([]core.Unit, 0, len(keys))
	for _, key := range keys {
		name := path.Base(key)
		u := core.Unit{
			Entity:   key,
			Table:    s.table(key),
			Location: key,
		}
		if id, ok := chunk.CorrelationID(s.prefix, name); ok {
			u.CorrelationIn = id
		}
		units = append(units, u)
	}
	s.logger.Debug("discovered objects", zap.Int("count", len(units)))
	return units, nil
}

func (s *Source) rel(key string) string {
	return stdstrings.TrimPrefix(stdstrings.TrimPrefix(key, s.cfg.Prefix), "/")
}

func (s *Source) archived(key string) bool {
	for _, part := range stdstrings.Split(path.Dir(s.rel(key)), "/") {
		if part == s.archive {
			return true
		}
	}
	return false
}

func (s *Source) table(key string) string {
	dir := path.Dir(s.rel(key))
	if dir == "." {
		return ""
	}
	return strings.FolderToTable(dir)
}

// Fetch downloads and parses one object.
func (s *Source) Fetch(ctx context.Context, unit core.Unit, _ core.Cursor) (*core.Batch, error) {
	client, err := s.api(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(unit.Location),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "get object").WithDetail("key", unit.Location)
	}
	defer out.Body.Close()

	r, err := compression.NewReader(out.Body, compression.FromExtension(unit.Location))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "open decompressor").WithDetail("key", unit.Location)
	}
	defer r.Close()

	b, err := shared.ReadCSV(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "parse object").WithDetail("key", unit.Location)
	}
	b.Table = unit.Table
	b.FileName = path.Base(unit.Location)
	return b, nil
}

// Close implements core.Source.
func (s *Source) Close() error { return nil }
