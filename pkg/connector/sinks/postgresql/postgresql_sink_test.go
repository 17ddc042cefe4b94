package postgresql

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

func TestSink_Identifier(t *testing.T) {
	tests := []struct {
		name  string
		conf  map[string]interface{}
		table string
		want  pgx.Identifier
	}{
		{"batch table", map[string]interface{}{}, "orders", pgx.Identifier{"public", "orders"}},
		{"qualified batch table", map[string]interface{}{}, "sales.orders", pgx.Identifier{"sales", "orders"}},
		{"configured", map[string]interface{}{"schema": "raw", "table": "t"}, "sales.orders", pgx.Identifier{"raw", "t"}},
		{"none", map[string]interface{}{}, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snk, err := New(core.Params{Name: "pg", Conf: tt.conf})
			require.NoError(t, err)
			assert.Equal(t, tt.want, snk.(*Sink).Identifier(&core.Batch{Table: tt.table}))
		})
	}
}

func TestSink_WriteWithoutTable(t *testing.T) {
	snk, err := New(core.Params{Name: "pg", Conf: map[string]interface{}{}})
	require.NoError(t, err)

	_, err = snk.Write(context.Background(), core.WriteRequest{Batch: &core.Batch{}})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	res, err := snk.Write(context.Background(), core.WriteRequest{Batch: &core.Batch{Table: "orders"}})
	require.NoError(t, err)
	assert.Equal(t, `"public"."orders"`, res.Entity)
	assert.NoError(t, snk.Close())
}
