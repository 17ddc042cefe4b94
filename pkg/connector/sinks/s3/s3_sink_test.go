package s3

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
)

type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]string
	created []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: map[string]bool{}, objects: map[string]string{}}
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.buckets[aws.ToString(in.Bucket)] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[aws.ToString(in.Bucket)] = true
	f.created = append(f.created, aws.ToString(in.Bucket))
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return &s3.UploadPartOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{}, nil
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestSink_CreatesDefaultBucketOnce(t *testing.T) {
	fake := newFakeS3()
	s, err := NewWithClient(core.Params{
		Name:     "lake",
		Conf:     map[string]interface{}{"prefix": "landing"},
		Settings: config.Resolve(config.Snapshot{}),
		Logger:   zaptest.NewLogger(t),
	}, fake)
	require.NoError(t, err)

	b := &core.Batch{Columns: []string{"id"}, Rows: [][]interface{}{{1}, {2}}, Table: "sales.orders"}
	ctx := context.Background()

	res, err := s.Write(ctx, core.WriteRequest{Batch: b, CorrelationID: "aa11"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "landing/sales__orders/hdm_aa11.csv", res.Entity)
	assert.Equal(t, DefaultBucket, res.Filter)

	_, err = s.Write(ctx, core.WriteRequest{Batch: b, CorrelationID: "bb22"})
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultBucket}, fake.created)
	assert.Equal(t, "id\n1\n2\n", fake.objects[DefaultBucket+"/landing/sales__orders/hdm_aa11.csv"])
	assert.Contains(t, fake.objects, DefaultBucket+"/landing/sales__orders/hdm_bb22.csv")
}

func TestSink_Key(t *testing.T) {
	s, err := NewWithClient(core.Params{
		Name: "lake",
		Conf: map[string]interface{}{"file_name": "fixed.csv", "compression": "zstd", "bucket_name": "b"},
	}, newFakeS3())
	require.NoError(t, err)

	assert.Equal(t, "fixed.csv.zst", s.Key(core.WriteRequest{Batch: &core.Batch{}, CorrelationID: "x"}))
}
