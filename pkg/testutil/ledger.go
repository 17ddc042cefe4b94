package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/dao"
	"github.com/ajitpratap0/hdm/pkg/ledger"
)

// Manifest is the manifest name stamped by NewLedger.
const Manifest = "test.yml"

// NewStore opens a ledger store on a SQLite file in the test's temp dir.
// The store is closed when the test completes.
func NewStore(t *testing.T) *ledger.SQLStore {
	t.Helper()
	return NewStoreAt(t, filepath.Join(t.TempDir(), "state.db"))
}

// NewStoreAt opens a ledger store on the SQLite file path, so a test can
// reopen the same ledger across simulated runs.
func NewStoreAt(t *testing.T, path string) *ledger.SQLStore {
	t.Helper()
	ctx := context.Background()

	db, err := dao.Open(ctx, "sqlite", map[string]interface{}{"database": path}, config.Resolve(config.Snapshot{}))
	require.NoError(t, err)

	store, err := ledger.NewSQLStore(ctx, db, ledger.StoreOptions{FormatDate: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Identity returns a link identity for jobID with source "src" and sink "dst".
func Identity(jobID string) ledger.Identity {
	return ledger.Identity{
		JobID:        jobID,
		RunID:        jobID + "-run",
		ManifestName: Manifest,
		Source:       ledger.Endpoint{Name: "src", Type: "fake"},
		Sink:         ledger.Endpoint{Name: "dst", Type: "fake"},
	}
}

// NewLedger returns a ledger handle for jobID over store.
func NewLedger(t *testing.T, store ledger.Store, jobID string) *ledger.Ledger {
	return ledger.New(store, Identity(jobID), TestLogger(t))
}

// JobRows returns every row of jobID, oldest first.
func JobRows(t *testing.T, store ledger.Store, jobID string) []ledger.StateRecord {
	t.Helper()
	rows, err := store.ListByJob(context.Background(), jobID)
	require.NoError(t, err)
	return rows
}
