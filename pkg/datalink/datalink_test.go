package datalink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/ledger"
	"github.com/ajitpratap0/hdm/pkg/runner"
	"github.com/ajitpratap0/hdm/pkg/testutil"
)

func newLink(t *testing.T, store ledger.Store, job string, src core.Source, sink core.Sink) *DataLink {
	l := testutil.NewLedger(t, store, job)
	log := testutil.TestLogger(t)
	return New("src->dst",
		runner.NewSourceRunner(src, l, runner.WithLogger(log)),
		runner.NewSinkRunner(sink, l, runner.WithLogger(log)),
		WithLogger(log))
}

func batchOf(n int) *core.Batch {
	b := &core.Batch{Columns: []string{"id"}}
	for i := 0; i < n; i++ {
		b.Rows = append(b.Rows, []interface{}{i})
	}
	return b
}

func TestDataLink_Run(t *testing.T) {
	store := testutil.NewStore(t)
	src := &testutil.FakeSource{
		Units: []core.Unit{{Entity: "a.csv"}, {Entity: "b.csv"}, {Entity: "c.csv"}},
		Batches: map[string]*core.Batch{
			"a.csv": batchOf(2),
			"c.csv": batchOf(5),
		},
		Errors: map[string]error{"b.csv": errors.New(errors.ErrorTypeFile, "corrupt")},
	}
	sink := &testutil.FakeSink{}

	stats, err := newLink(t, store, "job-1", src, sink).Run(testutil.TestContext(t))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Pulled)
	assert.Equal(t, 2, stats.Pushed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 7, stats.Records)
	assert.Len(t, sink.Writes(), 2, "failed pulls are not pushed")

	for _, row := range testutil.JobRows(t, store, "job-1") {
		assert.NotEqual(t, ledger.StatusInProgress, row.Status)
	}
}

func TestDataLink_SecondRunSkipsProcessedFiles(t *testing.T) {
	store := testutil.NewStore(t)
	units := []core.Unit{{Entity: "a.csv"}, {Entity: "b.csv"}}

	first := &testutil.TrackedSource{FakeSource: &testutil.FakeSource{Units: units}}
	_, err := newLink(t, store, "job-1", first, &testutil.FakeSink{}).Run(testutil.TestContext(t))
	require.NoError(t, err)

	second := &testutil.TrackedSource{FakeSource: &testutil.FakeSource{Units: units}}
	sink := &testutil.FakeSink{}
	stats, err := newLink(t, store, "job-2", second, sink).Run(testutil.TestContext(t))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Skipped)
	assert.Empty(t, second.Fetched())
	assert.Empty(t, sink.Writes())
}

func TestDataLink_FatalSinkErrorStops(t *testing.T) {
	store := testutil.NewStore(t)
	src := &testutil.FakeSource{Units: []core.Unit{{Entity: "a.csv"}, {Entity: "b.csv"}}}
	sink := &testutil.FakeSink{Err: errors.New(errors.ErrorTypeCapability, "Unknown output type: xml")}

	stats, err := newLink(t, store, "job-1", src, sink).Run(testutil.TestContext(t))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, 1, stats.Failed)
	assert.Len(t, src.Fetched(), 1)
}

func TestDataLink_IsRunning(t *testing.T) {
	store := testutil.NewStore(t)
	release := make(chan struct{})
	src := &testutil.FakeSource{
		Units: []core.Unit{{Entity: "a.csv"}},
		FetchFunc: func(core.Unit, core.Cursor) (*core.Batch, error) {
			<-release
			return batchOf(1), nil
		},
	}
	link := newLink(t, store, "job-1", src, &testutil.FakeSink{})
	assert.False(t, link.IsRunning())

	done := make(chan error, 1)
	go func() {
		_, err := link.Run(testutil.TestContext(t))
		done <- err
	}()

	testutil.AssertEventually(t, link.IsRunning, time.Second, "link should be running")
	_, err := link.Run(testutil.TestContext(t))
	assert.Error(t, err, "a running link cannot be started twice")

	close(release)
	require.NoError(t, <-done)
	assert.False(t, link.IsRunning())
}

func TestDataLink_Close(t *testing.T) {
	src := &testutil.FakeSource{}
	sink := &testutil.FakeSink{}
	link := newLink(t, testutil.NewStore(t), "job-1", src, sink)

	require.NoError(t, link.Close())
	assert.True(t, src.Closed())
	assert.True(t, sink.Closed())
}
