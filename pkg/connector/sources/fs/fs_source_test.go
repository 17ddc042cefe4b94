package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

func params(t *testing.T, conf map[string]interface{}) core.Params {
	return core.Params{
		Name:     "fs_src",
		Type:     "fs",
		Conf:     conf,
		Settings: config.Resolve(config.Snapshot{}),
		Logger:   zaptest.NewLogger(t),
	}
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestSource_DiscoverAndFetch(t *testing.T) {
	root := t.TempDir()
	write(t, root, "hdm_3f2a.csv", "id,name\n1,a\n")
	write(t, root, "sales__orders/orders.csv", "id\n1\n2\n")
	write(t, root, "archive/hdm_old.csv", "id\n9\n")
	write(t, root, "readme.md", "#")

	src, err := New(params(t, map[string]interface{}{"directory": root, "overwrite": true}))
	require.NoError(t, err)
	assert.Equal(t, core.KindFile, src.Kind())
	assert.True(t, src.(core.Tracked).Overwrite())

	units, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "hdm_3f2a.csv", units[0].Entity)
	assert.Equal(t, "3f2a", units[0].CorrelationIn)
	assert.Empty(t, units[0].Table)

	assert.Equal(t, "orders.csv", units[1].Entity)
	assert.Equal(t, "sales.orders", units[1].Table)
	assert.Empty(t, units[1].CorrelationIn)

	b, err := src.Fetch(context.Background(), units[1], "")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, b.Columns)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, "sales.orders", b.Table)
	assert.Equal(t, "orders.csv", b.FileName)
	assert.NoError(t, src.Close())
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		conf    map[string]interface{}
		errType errors.ErrorType
	}{
		{"no directory", map[string]interface{}{}, errors.ErrorTypeConfig},
		{"unknown format", map[string]interface{}{"directory": "x", "file_format": "parquet"}, errors.ErrorTypeCapability},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(params(t, tt.conf))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.errType), err.Error())
		})
	}
}

func TestSource_FetchMissingFile(t *testing.T) {
	src, err := New(params(t, map[string]interface{}{"directory": t.TempDir()}))
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), core.Unit{Entity: "gone.csv", Location: "/nonexistent/gone.csv"}, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}
