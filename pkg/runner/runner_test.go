package runner

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/hdm/pkg/chunk"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/json"
	"github.com/ajitpratap0/hdm/pkg/ledger"
	"github.com/ajitpratap0/hdm/pkg/testutil"
)

func collect(seq iter.Seq2[*Pulled, error]) ([]*Pulled, error) {
	var out []*Pulled
	for p, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

func fileUnits(names ...string) []core.Unit {
	units := make([]core.Unit, 0, len(names))
	for _, n := range names {
		units = append(units, core.Unit{Entity: n, Location: "/landing/" + n})
	}
	return units
}

func csvBatch(rows ...string) *core.Batch {
	b := &core.Batch{Columns: []string{"id", "name"}}
	for i, r := range rows {
		b.Rows = append(b.Rows, []interface{}{int64(i + 1), r})
	}
	return b
}

func TestSourceRunner_RecordsPrePostOnOneRow(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := testutil.NewStore(t)
	src := &testutil.FakeSource{
		Units:   fileUnits("a.csv", "b.csv"),
		Batches: map[string]*core.Batch{"a.csv": csvBatch("x", "y")},
	}
	r := NewSourceRunner(src, testutil.NewLedger(t, store, "job-1"), WithLogger(testutil.TestLogger(t)))

	pulled, err := collect(r.Consume(ctx))
	require.NoError(t, err)
	require.Len(t, pulled, 2)

	rows := testutil.JobRows(t, store, "job-1")
	require.Len(t, rows, 2)
	for i, row := range rows {
		assert.Equal(t, pulled[i].Record.StateID, row.StateID)
		assert.Equal(t, ledger.ActionPostPull, row.Action)
		assert.Equal(t, ledger.StatusSuccess, row.Status)
		assert.NotNil(t, row.SourcingStartTime)
		assert.NotNil(t, row.SourcingEndTime)
		assert.NotEmpty(t, row.CorrelationIDOut)
	}
	require.NotNil(t, rows[0].RecordCount)
	assert.Equal(t, 2, *rows[0].RecordCount)
	assert.Equal(t, 0, *rows[1].RecordCount)

	// file sources carry no snapshots
	assert.Empty(t, rows[0].FirstRecordPulled)
}

func TestSourceRunner_SkipsProcessedEntities(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := testutil.NewStore(t)

	first := &testutil.TrackedSource{FakeSource: &testutil.FakeSource{Units: fileUnits("a.csv")}}
	_, err := collect(NewSourceRunner(first, testutil.NewLedger(t, store, "job-1")).Consume(ctx))
	require.NoError(t, err)
	require.Len(t, first.Fetched(), 1)

	tests := []struct {
		name      string
		overwrite bool
		skipped   bool
		fetched   int
	}{
		{name: "seen entity is skipped", overwrite: false, skipped: true, fetched: 0},
		{name: "overwrite pulls again", overwrite: true, skipped: false, fetched: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &testutil.TrackedSource{
				FakeSource:   &testutil.FakeSource{Units: fileUnits("a.csv")},
				OverwriteAll: tt.overwrite,
			}
			pulled, err := collect(NewSourceRunner(src, testutil.NewLedger(t, store, "job-"+tt.name)).Consume(ctx))
			require.NoError(t, err)
			require.Len(t, pulled, 1)

			assert.Equal(t, tt.skipped, pulled[0].Skipped)
			assert.Len(t, src.Fetched(), tt.fetched)
			if tt.skipped {
				assert.Nil(t, pulled[0].Record)
				assert.Empty(t, testutil.JobRows(t, store, "job-"+tt.name))
			}
		})
	}
}

func TestSourceRunner_WatermarkAdvances(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := testutil.NewStore(t)

	table := []int64{1, 2, 3}
	src := &testutil.FakeSource{
		SourceKind: core.KindDatabase,
		Units:      []core.Unit{{Entity: "shop.orders", Table: "orders"}},
	}
	src.FetchFunc = func(_ core.Unit, cursor core.Cursor) (*core.Batch, error) {
		var lower int64
		if v, ok := cursor.Value("id"); ok {
			n, err := v.(json.Number).Int64()
			if err != nil {
				return nil, err
			}
			lower = n
		}
		b := &core.Batch{Columns: []string{"id", "amount"}}
		for _, id := range table {
			if id > lower {
				b.Rows = append(b.Rows, []interface{}{id, []byte("9.99")})
			}
		}
		return b, nil
	}

	run := func(job string) *Pulled {
		pulled, err := collect(NewSourceRunner(src, testutil.NewLedger(t, store, job)).Consume(ctx))
		require.NoError(t, err)
		require.Len(t, pulled, 1)
		return pulled[0]
	}

	first := run("job-1")
	assert.Equal(t, 3, first.Batch.Len())
	assert.Equal(t, `{"amount":"9.99","id":1}`, first.Record.FirstRecordPulled)
	assert.Equal(t, `{"amount":"9.99","id":3}`, first.Record.LastRecordPulled)
	assert.Equal(t, "orders", first.Batch.Table)

	second := run("job-2")
	assert.Equal(t, 0, second.Batch.Len(), "no new data extracts nothing")
	assert.Equal(t, first.Record.LastRecordPulled, second.Record.LastRecordPulled)

	table = append(table, 4, 5)
	third := run("job-3")
	assert.Equal(t, 2, third.Batch.Len())
	assert.Equal(t, `{"amount":"9.99","id":5}`, third.Record.LastRecordPulled)

	cursors := src.Cursors()
	require.Len(t, cursors, 3)
	assert.Equal(t, core.Cursor(""), cursors[0])
	assert.Equal(t, core.Cursor(first.Record.LastRecordPulled), cursors[1])
	assert.Equal(t, core.Cursor(second.Record.LastRecordPulled), cursors[2])
}

func TestSourceRunner_FetchFailureIsRecorded(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := testutil.NewStore(t)
	src := &testutil.FakeSource{
		Units:  fileUnits("a.csv", "b.csv"),
		Errors: map[string]error{"a.csv": errors.New(errors.ErrorTypeFile, "permission denied")},
	}

	pulled, err := collect(NewSourceRunner(src, testutil.NewLedger(t, store, "job-1")).Consume(ctx))
	require.NoError(t, err)
	require.Len(t, pulled, 2)

	assert.True(t, pulled[0].Failed())
	assert.Nil(t, pulled[0].Batch)
	assert.Error(t, pulled[0].Err)
	assert.False(t, pulled[1].Failed())

	rows := testutil.JobRows(t, store, "job-1")
	require.Len(t, rows, 2)
	assert.Equal(t, ledger.StatusFailure, rows[0].Status)
	assert.Nil(t, rows[0].RecordCount)
	assert.NotEmpty(t, rows[0].CorrelationIDOut)
}

func TestSourceRunner_FatalFetchErrorStops(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := testutil.NewStore(t)
	src := &testutil.FakeSource{
		Units:  fileUnits("a.csv", "b.csv"),
		Errors: map[string]error{"a.csv": errors.New(errors.ErrorTypeConfig, "missing column")},
	}

	pulled, err := collect(NewSourceRunner(src, testutil.NewLedger(t, store, "job-1")).Consume(ctx))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Empty(t, pulled)
	assert.Len(t, src.Fetched(), 1)

	rows := testutil.JobRows(t, store, "job-1")
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.StatusFailure, rows[0].Status)
}

func TestSourceRunner_CustomErrorHandler(t *testing.T) {
	ctx := testutil.TestContext(t)
	stop := errors.New(errors.ErrorTypeInternal, "stop")
	src := &testutil.FakeSource{
		Units:  fileUnits("a.csv", "b.csv"),
		Errors: map[string]error{"a.csv": errors.New(errors.ErrorTypeFile, "truncated")},
	}
	var handled []string
	r := NewSourceRunner(src, testutil.NewLedger(t, testutil.NewStore(t), "job-1"),
		WithErrorHandler(func(_ context.Context, u core.Unit, _ error) error {
			handled = append(handled, u.Entity)
			return stop
		}))

	_, err := collect(r.Consume(ctx))
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a.csv"}, handled)
}

func TestSourceRunner_ExpandFailureSkipsEntity(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := testutil.NewStore(t)
	src := &testutil.ExpandingSource{
		FakeSource: &testutil.FakeSource{Units: fileUnits("bad.csv", "good.csv")},
		ExpandFunc: func(u core.Unit) ([]core.Unit, error) {
			if u.Entity == "bad.csv" {
				return nil, errors.New(errors.ErrorTypeFile, "unreadable")
			}
			return []core.Unit{
				{Entity: u.Entity, Filter: map[string]interface{}{"chunk": 1, "seq": 0}},
				{Entity: u.Entity, Filter: map[string]interface{}{"chunk": 1, "seq": 1}},
			}, nil
		},
	}

	pulled, err := collect(NewSourceRunner(src, testutil.NewLedger(t, store, "job-1")).Consume(ctx))
	require.NoError(t, err)
	require.Len(t, pulled, 2)
	for _, p := range pulled {
		assert.Equal(t, "good.csv", p.Unit.Entity)
	}

	rows := testutil.JobRows(t, store, "job-1")
	require.Len(t, rows, 2)
	assert.Equal(t, `{"chunk":1,"seq":0}`, rows[0].SourceFilter)
	assert.Equal(t, `{"chunk":1,"seq":1}`, rows[1].SourceFilter)
}

func TestSourceRunner_DiscoverError(t *testing.T) {
	src := &testutil.FakeSource{DiscoverErr: errors.New(errors.ErrorTypeConnection, "bucket unreachable")}
	r := NewSourceRunner(src, testutil.NewLedger(t, testutil.NewStore(t), "job-1"))

	_, err := collect(r.Consume(testutil.TestContext(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
}

func TestSourceRunner_LedgerErrorEndsSequence(t *testing.T) {
	store := testutil.NewStore(t)
	src := &testutil.FakeSource{Units: fileUnits("a.csv", "b.csv")}
	r := NewSourceRunner(src, testutil.NewLedger(t, store, "job-1"))
	require.NoError(t, store.Close())

	pulled, err := collect(r.Consume(testutil.TestContext(t)))
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Empty(t, pulled)
	assert.Empty(t, src.Fetched())
}

func TestSourceRunner_StopsWhenCallerStops(t *testing.T) {
	src := &testutil.FakeSource{Units: fileUnits("a.csv", "b.csv", "c.csv")}
	r := NewSourceRunner(src, testutil.NewLedger(t, testutil.NewStore(t), "job-1"))

	for p, err := range r.Consume(testutil.TestContext(t)) {
		require.NoError(t, err)
		assert.Equal(t, "a.csv", p.Unit.Entity)
		break
	}
	assert.Len(t, src.Fetched(), 1)
}

func TestSinkRunner_MovesSourceRowThroughPush(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := testutil.NewStore(t)
	l := testutil.NewLedger(t, store, "job-1")

	src := &testutil.FakeSource{
		Units:   fileUnits("a.csv"),
		Batches: map[string]*core.Batch{"a.csv": csvBatch("x", "y", "z")},
	}
	sink := &testutil.FakeSink{}
	sinkRunner := NewSinkRunner(sink, l)

	pulled, err := collect(NewSourceRunner(src, l).Consume(ctx))
	require.NoError(t, err)
	require.Len(t, pulled, 1)

	pushed, err := sinkRunner.Push(ctx, pulled[0])
	require.NoError(t, err)
	assert.False(t, pushed.Failed())

	writes := sink.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, pulled[0].Record.CorrelationIDOut, writes[0].CorrelationID)
	assert.Equal(t, "a.csv", writes[0].SourceEntity)

	rows := testutil.JobRows(t, store, "job-1")
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, pulled[0].Record.StateID, row.StateID)
	assert.Equal(t, ledger.ActionPostPush, row.Action)
	assert.Equal(t, ledger.StatusSuccess, row.Status)
	assert.Equal(t, "a.csv", row.SinkEntity)
	require.NotNil(t, row.RecordCount)
	assert.Equal(t, 3, *row.RecordCount)
	assert.NotNil(t, row.SourcingEndTime)
	assert.NotNil(t, row.SinkingStartTime)
	assert.NotNil(t, row.SinkingEndTime)
}

func TestSinkRunner_InsertsWithoutSourceRow(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := testutil.NewStore(t)
	sink := &testutil.FakeSink{}

	pushed, err := NewSinkRunner(sink, testutil.NewLedger(t, store, "job-1")).Push(ctx, &Pulled{
		Unit: core.Unit{Entity: "stage", CorrelationIn: "abc"},
	})
	require.NoError(t, err)

	assert.Equal(t, "abc", pushed.Record.CorrelationIDIn)
	assert.Equal(t, "abc", pushed.Record.CorrelationIDOut)
	assert.Equal(t, "abc", sink.Writes()[0].CorrelationID)
	assert.Len(t, testutil.JobRows(t, store, "job-1"), 1)
}

func TestSinkRunner_WriteErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "transient failure is recorded", err: errors.New(errors.ErrorTypeFile, "disk full"), wantErr: false},
		{name: "unknown format is fatal", err: errors.New(errors.ErrorTypeCapability, "Unknown output type: xml"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testutil.TestContext(t)
			store := testutil.NewStore(t)
			r := NewSinkRunner(&testutil.FakeSink{Err: tt.err}, testutil.NewLedger(t, store, "job-1"))

			pushed, err := r.Push(ctx, &Pulled{Unit: core.Unit{Entity: "a.csv"}, Batch: csvBatch("x")})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, pushed)
			assert.True(t, pushed.Failed())

			rows := testutil.JobRows(t, store, "job-1")
			require.Len(t, rows, 1)
			assert.Equal(t, ledger.ActionPostPush, rows[0].Action)
			assert.Equal(t, ledger.StatusFailure, rows[0].Status)
			assert.Nil(t, rows[0].RecordCount)
		})
	}
}

func TestSinkRunner_LedgerError(t *testing.T) {
	store := testutil.NewStore(t)
	sink := &testutil.FakeSink{}
	r := NewSinkRunner(sink, testutil.NewLedger(t, store, "job-1"))
	require.NoError(t, store.Close())

	_, err := r.Push(testutil.TestContext(t), &Pulled{Unit: core.Unit{Entity: "a.csv"}})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Empty(t, sink.Writes())
}

func TestRunners_ChunkCorrelationChaining(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := testutil.NewStore(t)
	l := testutil.NewLedger(t, store, "job-1")

	names := []string{chunk.FileName("hdm", "c0ffee01"), chunk.FileName("hdm", "c0ffee02")}
	src := &testutil.ExpandingSource{
		FakeSource: &testutil.FakeSource{Units: []core.Unit{{Entity: "hdm_AAAA.csv", CorrelationIn: "AAAA"}}},
		ExpandFunc: func(u core.Unit) ([]core.Unit, error) {
			var out []core.Unit
			for seq, name := range names {
				id, _ := chunk.CorrelationID("hdm", name)
				out = append(out, core.Unit{
					Entity:         u.Entity,
					Filter:         map[string]interface{}{"chunk": 2, "seq": seq},
					CorrelationIn:  u.CorrelationIn,
					CorrelationOut: id,
					Location:       name,
				})
			}
			return out, nil
		},
	}
	sink := &testutil.FakeSink{}
	sinkRunner := NewSinkRunner(sink, l)

	for p, err := range NewSourceRunner(src, l).Consume(ctx) {
		require.NoError(t, err)
		_, err = sinkRunner.Push(ctx, p)
		require.NoError(t, err)
	}

	writes := sink.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "c0ffee01", writes[0].CorrelationID)
	assert.Equal(t, "c0ffee02", writes[1].CorrelationID)

	rows := testutil.JobRows(t, store, "job-1")
	require.Len(t, rows, 2)
	for i, row := range rows {
		assert.Equal(t, "hdm_AAAA.csv", row.SourceEntity)
		assert.Equal(t, "AAAA", row.CorrelationIDIn)
		assert.Equal(t, writes[i].CorrelationID, row.CorrelationIDOut)
		assert.Equal(t, ledger.ActionPostPush, row.Action)
	}
}
