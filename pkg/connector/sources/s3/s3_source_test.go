package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/hdm/pkg/compression"
	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
)

type fakeBucket struct {
	objects map[string][]byte
}

func (f *fakeBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[aws.ToString(in.Key)]))}, nil
}

func gzipped(t *testing.T, s string) []byte {
	var buf bytes.Buffer
	w, err := compression.NewWriter(&buf, compression.Gzip, compression.Default)
	require.NoError(t, err)
	_, err = w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestSource_DiscoverAndFetch(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{
		"in/hdm_ab12.csv":           []byte("id\n1\n"),
		"in/sales__orders/o.csv.gz": gzipped(t, "id,total\n1,10\n2,20\n"),
		"in/archive/hdm_old.csv":    []byte("id\n1\n"),
		"in/notes.txt":              []byte("x"),
		"other/hdm_elsewhere.csv":   []byte("id\n1\n"),
	}}

	src, err := NewWithClient(core.Params{
		Name:     "s3_src",
		Conf:     map[string]interface{}{"bucket_name": "b", "prefix": "in/"},
		Settings: config.Resolve(config.Snapshot{}),
		Logger:   zaptest.NewLogger(t),
	}, bucket)
	require.NoError(t, err)

	ctx := context.Background()
	units, err := src.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "in/hdm_ab12.csv", units[0].Entity)
	assert.Equal(t, "ab12", units[0].CorrelationIn)
	assert.Empty(t, units[0].Table)
	assert.Equal(t, "in/sales__orders/o.csv.gz", units[1].Entity)
	assert.Equal(t, "sales.orders", units[1].Table)

	b, err := src.Fetch(ctx, units[1], "")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "total"}, b.Columns)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, "o.csv.gz", b.FileName)
}
