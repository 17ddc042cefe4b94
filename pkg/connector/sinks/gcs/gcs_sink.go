// Package gcs uploads batches as CSV objects to Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"io"
	"path"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/hdm/pkg/compression"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/strings"
)

// Config is the gcs sink conf block.
type Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
	Compression     string `mapstructure:"compression"`
}

// Sink uploads one object per batch.
type Sink struct {
	cfg    Config
	prefix string
	algo   compression.Algorithm
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	client *storage.Client
	handle *storage.BucketHandle
}

// New builds a gcs sink. The client is created on the first Write.
func New(params core.Params) (core.Sink, error) {
	var cfg Config
	if err := params.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid gcs sink conf")
	}
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "gcs sink requires bucket")
	}
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
		prefix: shared.FilePrefix(params.Settings),
		algo:   algo,
		logger: log.With(zap.String("sink", params.Name)),
		now:    time.Now,
	}, nil
}

func (s *Sink) bucket(ctx context.Context) (*storage.BucketHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		return s.handle, nil
	}

	var opts []option.ClientOption
	if s.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.cfg.CredentialsFile))
	}
	if s.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}

	handle := client.Bucket(s.cfg.Bucket)
	if _, err := handle.Attrs(ctx); err != nil {
		if !errors.Is(err, storage.ErrBucketNotExist) || s.cfg.ProjectID == "" {
			_ = client.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to access GCS bucket").
				WithDetail("bucket", s.cfg.Bucket)
		}
		if err := handle.Create(ctx, s.cfg.ProjectID, nil); err != nil {
			s.logger.Warn("bucket create failed", zap.String("bucket", s.cfg.Bucket), zap.Error(err))
		}
	}

	s.client = client
	s.handle = handle
	return handle, nil
}

// ObjectName returns the object name for a request. Names carry a UTC
// timestamp so repeated runs never overwrite each other.
func (s *Sink) ObjectName(req core.WriteRequest) string {
	name := s.prefix + "_" + req.CorrelationID + "_" + s.now().UTC().Format("20060102150405") + ".csv" + s.algo.Extension()
	var table string
	if req.Batch != nil && req.Batch.Table != "" {
		table = strings.TableToFolder(req.Batch.Table)
	}
	return path.Join(s.cfg.Prefix, table, name)
}

// Write uploads the batch.
func (s *Sink) Write(ctx context.Context, req core.WriteRequest) (core.WriteResult, error) {
	handle, err := s.bucket(ctx)
	if err != nil {
		return core.WriteResult{}, err
	}

	var buf bytes.Buffer
	cw, err := compression.NewWriter(&buf, s.algo, compression.Default)
	if err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeConfig, "open compressor")
	}
	if err := shared.WriteCSV(cw, req.Batch); err != nil {
		return core.WriteResult{}, err
	}
	if err := cw.Close(); err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeFile, "flush compressor")
	}

	name := s.ObjectName(req)
	w := handle.Object(name).NewWriter(ctx)
	w.ContentType = "text/csv"
	w.Metadata = map[string]string{
		"records":        strconv.Itoa(req.Batch.Len()),
		"correlation-id": req.CorrelationID,
	}
	if _, err := io.Copy(w, &buf); err != nil {
		_ = w.Close()
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeConnection, "failed to write to GCS")
	}
	if err := w.Close(); err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeConnection, "failed to close GCS writer")
	}

	s.logger.Debug("object uploaded", zap.String("object", name), zap.Int("rows", req.Batch.Len()))
	return core.WriteResult{Count: req.Batch.Len(), Entity: name, Filter: s.cfg.Bucket}, nil
}

// Close releases the client.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client, s.handle = nil, nil
	return err
}
