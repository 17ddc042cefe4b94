// Package s3 uploads batches as CSV objects, creating the bucket on first
// use when it does not exist.
package s3

import (
	"bytes"
	"context"
	"path"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/chunk"
	"github.com/ajitpratap0/hdm/pkg/compression"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/shared"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/strings"
)

// DefaultBucket is used when the conf names no bucket.
const DefaultBucket = "hdm-defbucket"

// Config is the s3 sink conf block.
type Config struct {
	Connection  string `mapstructure:"connection"`
	BucketName  string `mapstructure:"bucket_name"`
	Prefix      string `mapstructure:"prefix"`
	FileName    string `mapstructure:"file_name"`
	Compression string `mapstructure:"compression"`
	Region      string `mapstructure:"region"`
}

// BucketAPI is the part of the S3 client the sink uses.
type BucketAPI interface {
	manager.UploadAPIClient
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Sink uploads one object per batch.
type Sink struct {
	cfg    Config
	params core.Params
	prefix string
	algo   compression.Algorithm
	logger *zap.Logger

	mu       sync.Mutex
	client   BucketAPI
	uploader *manager.Uploader
	ready    bool
}

// New builds an s3 sink. The client is created on the first Write.
func New(params core.Params) (core.Sink, error) {
	cfg := Config{BucketName: DefaultBucket}
	if err := params.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid s3 sink conf")
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
		params: params,
		prefix: shared.FilePrefix(params.Settings),
		algo:   algo,
		logger: log.With(zap.String("sink", params.Name)),
	}, nil
}

// NewWithClient builds an s3 sink over an existing client.
func NewWithClient(params core.Params, client BucketAPI) (*Sink, error) {
	snk, err := New(params)
	if err != nil {
		return nil, err
	}
	s := snk.(*Sink)
	s.client = client
	return s, nil
}

// bucket connects if needed and makes sure the bucket exists.
func (s *Sink) bucket(ctx context.Context) (*manager.Uploader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return s.uploader, nil
	}
	if s.client == nil {
		conn, err := s.params.Connection(s.cfg.Connection)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "resolve connection")
		}
		client, err := shared.NewS3Client(ctx, conn)
		if err != nil {
			return nil, err
		}
		if s.cfg.Region == "" {
			s.cfg.Region = client.Options().Region
		}
		s.client = client
	}

	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	s.uploader = manager.NewUploader(s.client)
	s.ready = true
	return s.uploader, nil
}

func (s *Sink) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.BucketName)})
	if err == nil {
		return nil
	}
	if !notFound(err) {
		return errors.Wrap(err, errors.ErrorTypeConnection, "check bucket").WithDetail("bucket", s.cfg.BucketName)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(s.cfg.BucketName)}
	if s.cfg.Region != "" && s.cfg.Region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.cfg.Region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, in); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "create bucket").WithDetail("bucket", s.cfg.BucketName)
	}
	s.logger.Info("created S3 bucket", zap.String("bucket", s.cfg.BucketName))
	return nil
}

func notFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

// Key returns the object key for a request.
func (s *Sink) Key(req core.WriteRequest) string {
	name := s.cfg.FileName
	if name == "" {
		name = chunk.FileName(s.prefix, req.CorrelationID)
	}
	name += s.algo.Extension()

	var table string
	if req.Batch != nil && req.Batch.Table != "" {
		table = strings.TableToFolder(req.Batch.Table)
	}
	return path.Join(s.cfg.Prefix, table, name)
}

// Write uploads the batch.
func (s *Sink) Write(ctx context.Context, req core.WriteRequest) (core.WriteResult, error) {
	uploader, err := s.bucket(ctx)
	if err != nil {
		return core.WriteResult{}, err
	}

	var buf bytes.Buffer
	w, err := compression.NewWriter(&buf, s.algo, compression.Default)
	if err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeConfig, "open compressor")
	}
	if err := shared.WriteCSV(w, req.Batch); err != nil {
		return core.WriteResult{}, err
	}
	if err := w.Close(); err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeFile, "flush compressor")
	}

	key := s.Key(req)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
		Metadata: map[string]string{
			"records":        strconv.Itoa(req.Batch.Len()),
			"correlation-id": req.CorrelationID,
		},
	})
	if err != nil {
		return core.WriteResult{}, errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload to S3").
			WithDetail("key", key)
	}

	s.logger.Debug("object uploaded", zap.String("key", key), zap.Int("rows", req.Batch.Len()))
	return core.WriteResult{Count: req.Batch.Len(), Entity: key, Filter: s.cfg.BucketName}, nil
}

// Close implements core.Sink.
func (s *Sink) Close() error { return nil }
