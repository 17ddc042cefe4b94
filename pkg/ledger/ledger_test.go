package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/dao"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := dao.Open(ctx, "sqlite",
		map[string]interface{}{"database": filepath.Join(t.TempDir(), "state.db")},
		config.Resolve(config.Snapshot{}))
	require.NoError(t, err)

	s, err := NewSQLStore(ctx, db, StoreOptions{FormatDate: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testIdentity(job string) Identity {
	return Identity{
		JobID:        job,
		RunID:        "run-1",
		ManifestName: "daily.yml",
		Source:       Endpoint{Name: "landing", Type: "fs"},
		Sink:         Endpoint{Name: "warehouse", Type: "mysql"},
	}
}

func TestLedger_Insert(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t), testIdentity("job-1"), zaptest.NewLogger(t))

	rec, err := l.Insert(ctx, Entry{
		Action:            ActionPrePull,
		Status:            StatusInProgress,
		SourceEntity:      "orders.csv",
		SourceFilter:      map[string]interface{}{"seq": 1, "chunk": 100},
		SourcingStartTime: Time(time.Now()),
	})
	require.NoError(t, err)

	assert.Len(t, rec.StateID, 32)
	assert.Len(t, rec.CorrelationIDOut, 32)
	assert.Equal(t, `{"chunk":100,"seq":1}`, rec.SourceFilter)
	assert.Equal(t, "job-1", rec.JobID)
	assert.Equal(t, "landing", rec.SourceName)
	assert.NotEmpty(t, rec.GitSHA)

	got, err := l.CurrentState(ctx, "orders.csv", map[string]interface{}{"chunk": 100, "seq": 1})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.StateID, got.StateID)
	assert.Equal(t, rec.CorrelationIDOut, got.CorrelationIDOut)
	assert.Equal(t, ActionPrePull, got.Action)
	assert.Nil(t, got.RecordCount)
	require.NotNil(t, got.SourcingStartTime)
}

func TestLedger_Insert_KeepsGivenCorrelation(t *testing.T) {
	l := New(newTestStore(t), testIdentity("job-1"), nil)

	rec, err := l.Insert(context.Background(), Entry{
		Action: ActionPrePull, Status: StatusInProgress,
		SourceEntity: "a.csv", CorrelationIDIn: "in-1", CorrelationIDOut: "chunk-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "in-1", rec.CorrelationIDIn)
	assert.Equal(t, "chunk-7", rec.CorrelationIDOut)
}

func TestLedger_Update_PreservesKeys(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t), testIdentity("job-1"), nil)

	rec, err := l.Insert(ctx, Entry{
		Action: ActionPrePull, Status: StatusInProgress,
		SourceEntity: "a.csv", CorrelationIDIn: "in-1",
	})
	require.NoError(t, err)

	e := rec.Entry()
	e.Action = ActionPostPull
	e.Status = StatusSuccess
	e.RecordCount = Count(42)
	e.CorrelationIDIn = "tampered"
	_, err = l.Update(ctx, rec.StateID, e)
	require.NoError(t, err)

	got, err := l.CurrentState(ctx, "a.csv", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.StateID, got.StateID)
	assert.Equal(t, "in-1", got.CorrelationIDIn)
	assert.Equal(t, rec.CorrelationIDOut, got.CorrelationIDOut)
	assert.Equal(t, ActionPostPull, got.Action)
	assert.Equal(t, StatusSuccess, got.Status)
	require.NotNil(t, got.RecordCount)
	assert.Equal(t, 42, *got.RecordCount)
	assert.True(t, got.UpdatedOn.After(rec.UpdatedOn))
}

func TestLedger_Update_UnknownState(t *testing.T) {
	l := New(newTestStore(t), testIdentity("job-1"), nil)

	_, err := l.Update(context.Background(), "missing", Entry{Action: ActionPostPull, Status: StatusSuccess})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}

func TestLedger_CurrentState_ScopedToJob(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	first := New(store, testIdentity("job-1"), nil)
	second := New(store, testIdentity("job-2"), nil)

	_, err := first.Insert(ctx, Entry{Action: ActionPrePull, Status: StatusInProgress, SourceEntity: "a.csv"})
	require.NoError(t, err)

	got, err := second.CurrentState(ctx, "a.csv", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = first.CurrentState(ctx, "a.csv", map[string]int{"seq": 9})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLedger_LastRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := New(store, testIdentity("job-1"), nil)

	_, ok, err := l.LastRecord(ctx, "shop.orders")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, last := range []string{`{"id":10}`, `{"id":20}`, ""} {
		_, err := l.Insert(ctx, Entry{
			Action: ActionPostPull, Status: StatusSuccess,
			SourceEntity: "shop.orders", LastRecordPulled: last,
		})
		require.NoError(t, err)
	}

	// another manifest never leaks its cursor
	other := testIdentity("job-9")
	other.ManifestName = "other.yml"
	_, err = New(store, other, nil).Insert(ctx, Entry{
		Action: ActionPostPull, Status: StatusSuccess,
		SourceEntity: "shop.orders", LastRecordPulled: `{"id":99}`,
	})
	require.NoError(t, err)

	last, ok, err := l.LastRecord(ctx, "shop.orders")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":20}`, last)
}

func TestLedger_ProcessingHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := New(store, testIdentity("job-1"), nil)

	for _, entity := range []string{"a.csv", "b.csv", "a.csv"} {
		_, err := l.Insert(ctx, Entry{Action: ActionPrePull, Status: StatusInProgress, SourceEntity: entity})
		require.NoError(t, err)
	}

	otherSource := testIdentity("job-2")
	otherSource.Source.Name = "archive"
	_, err := New(store, otherSource, nil).Insert(ctx, Entry{Action: ActionPrePull, Status: StatusInProgress, SourceEntity: "c.csv"})
	require.NoError(t, err)

	seen, err := New(store, testIdentity("job-3"), nil).ProcessingHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a.csv": {}, "b.csv": {}}, seen)
}

func TestSQLStore_ListByStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := New(store, testIdentity("job-1"), nil)

	zombie, err := l.Insert(ctx, Entry{Action: ActionPrePull, Status: StatusInProgress, SourceEntity: "a.csv"})
	require.NoError(t, err)
	done, err := l.Insert(ctx, Entry{Action: ActionPrePull, Status: StatusInProgress, SourceEntity: "b.csv"})
	require.NoError(t, err)
	e := done.Entry()
	e.Action, e.Status = ActionPostPull, StatusSuccess
	_, err = l.Update(ctx, done.StateID, e)
	require.NoError(t, err)

	rows, err := store.ListByStatus(ctx, "daily.yml", StatusInProgress)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, zombie.StateID, rows[0].StateID)
}

func TestSQLStore_ListByJob(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := New(store, testIdentity("job-1"), nil).Insert(ctx, Entry{Action: ActionPrePull, Status: StatusInProgress, SourceEntity: "a.csv"})
	require.NoError(t, err)
	_, err = New(store, testIdentity("job-2"), nil).Insert(ctx, Entry{Action: ActionPrePull, Status: StatusInProgress, SourceEntity: "b.csv"})
	require.NoError(t, err)

	rows, err := store.ListByJob(ctx, "job-2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b.csv", rows[0].SourceEntity)
}

func TestLedger_StoreFailureIsConnectionError(t *testing.T) {
	store := newTestStore(t)
	l := New(store, testIdentity("job-1"), nil)
	require.NoError(t, store.Close())

	_, err := l.Insert(context.Background(), Entry{Action: ActionPrePull, Status: StatusInProgress, SourceEntity: "a.csv"})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, true, e.Details["ledger"])
}

func TestNewSQLStore_CustomDDL(t *testing.T) {
	ctx := context.Background()
	db, err := dao.Open(ctx, "sqlite",
		map[string]interface{}{"database": filepath.Join(t.TempDir(), "state.db")},
		config.Resolve(config.Snapshot{}))
	require.NoError(t, err)

	s, err := NewSQLStore(ctx, db, StoreOptions{Table: "hdm_state", DDL: defaultDDL})
	require.NoError(t, err)
	defer s.Close()

	rec, err := New(s, testIdentity("job-1"), nil).Insert(ctx, Entry{Action: ActionPrePull, Status: StatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, LayoutMilli, s.layout)
	assert.Equal(t, rec.UpdatedOn, rec.UpdatedOn.Truncate(time.Millisecond))
}

func TestClock_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &clock{now: func() time.Time { return fixed }, tick: time.Microsecond}

	a, b, d := c.Now(), c.Now(), c.Now()
	assert.Equal(t, fixed, a)
	assert.Equal(t, fixed.Add(time.Microsecond), b)
	assert.Equal(t, fixed.Add(2*time.Microsecond), d)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "-")
}
