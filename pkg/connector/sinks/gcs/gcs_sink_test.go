package gcs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

func TestSink_ObjectName(t *testing.T) {
	snk, err := New(core.Params{
		Name:     "gcs",
		Conf:     map[string]interface{}{"bucket": "b", "prefix": "exports", "compression": "gzip"},
		Settings: config.Resolve(config.Snapshot{}),
	})
	require.NoError(t, err)
	s := snk.(*Sink)
	s.now = func() time.Time { return time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC) }

	tests := []struct {
		table string
		want  string
	}{
		{"", "exports/hdm_c1_20240309080706.csv.gz"},
		{"sales.orders", "exports/sales__orders/hdm_c1_20240309080706.csv.gz"},
	}
	for _, tt := range tests {
		got := s.ObjectName(core.WriteRequest{Batch: &core.Batch{Table: tt.table}, CorrelationID: "c1"})
		assert.Equal(t, tt.want, got)
	}
	assert.NoError(t, s.Close())
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(core.Params{Name: "gcs", Conf: map[string]interface{}{}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
