package dao

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func init() {
	Register("sqlite", Backend{
		Dialect: Dialect{Name: "sqlite", Placeholder: questionMark, Quote: doubleQuote},
		Open:    openSQLite,
	})
}

// SQLitePath resolves the database file of a sqlite connection. A database
// name without the .db suffix gets one; relative names live under dbpath.
func SQLitePath(c Conn) string {
	db := strings.TrimSpace(c.Database)
	if db == "" || db == ":memory:" {
		return ":memory:"
	}
	if !strings.HasSuffix(db, ".db") {
		db += ".db"
	}
	if c.DBPath != "" && !filepath.IsAbs(db) {
		db = filepath.Join(c.DBPath, db)
	}
	return db
}

func openSQLite(ctx context.Context, c Conn, _ string) (*sql.DB, error) {
	path := SQLitePath(c)
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: WAL for readers, and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := ping(ctx, db, connectivity); err != nil {
		return nil, err
	}
	if path == ":memory:" {
		return db, nil
	}

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}
