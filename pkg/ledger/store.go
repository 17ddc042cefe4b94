package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/dao"
)

//go:embed state_manager.sql
var defaultDDL string

// Timestamp layouts. Engines with millisecond datetime precision use the
// short form (format_date: false).
const (
	LayoutMicro = "2006-01-02 15:04:05.000000"
	LayoutMilli = "2006-01-02 15:04:05.000"
	parseLayout = "2006-01-02 15:04:05.999999999"
)

// Store persists ledger rows. One store is shared by every link of a run and
// must tolerate interleaved calls from concurrent links.
type Store interface {
	Insert(ctx context.Context, rec *StateRecord) error
	Update(ctx context.Context, rec *StateRecord) error
	Current(ctx context.Context, q CurrentQuery) (*StateRecord, error)
	LastRecord(ctx context.Context, manifest, entity string) (string, bool, error)
	History(ctx context.Context, sourceName, manifest string) (map[string]struct{}, error)
	ListByStatus(ctx context.Context, manifest string, status Status) ([]StateRecord, error)
	ListByJob(ctx context.Context, jobID string) ([]StateRecord, error)
	ListByRun(ctx context.Context, runID string) ([]StateRecord, error)
	// Now returns a strictly increasing UTC time for updated_on.
	Now() time.Time
	Close() error
}

// CurrentQuery selects the most recent row of a job. Empty Entity or Filter
// leave that column unconstrained.
type CurrentQuery struct {
	JobID      string
	SourceName string
	Entity     string
	Filter     string
}

// StoreOptions configure a SQLStore.
type StoreOptions struct {
	Table string
	// DDL creates the table when it does not exist. {{table}} is replaced
	// with Table. Empty uses the built-in definition.
	DDL        string
	FormatDate bool
}

// SQLStore is a Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dao.Dialect
	table   string
	layout  string
	clock   *clock
}

var columns = []string{
	"state_id", "run_id", "job_id", "correlation_id_in", "correlation_id_out",
	"action", "status", "source_name", "source_type", "sink_name", "sink_type",
	"source_entity", "source_filter", "sink_entity", "sink_filter",
	"first_record_pulled", "last_record_pulled", "git_sha",
	"sourcing_start_time", "sourcing_end_time", "sinking_start_time", "sinking_end_time",
	"updated_on", "row_count", "manifest_name",
}

// OpenStore opens the store described by the manifest's state_manager section.
func OpenStore(ctx context.Context, cfg config.StateManagerConfig, profiles config.Profiles, settings config.Settings) (*SQLStore, error) {
	connName := cfg.Connection
	if connName == "" {
		connName = config.DefaultStateTable
	}
	backend := cfg.DAO
	if backend == "" {
		backend = "sqlite"
	}

	conn, err := profiles.Connection(settings.Env, connName)
	if err != nil {
		return nil, wrap(err, "resolve state manager connection")
	}
	db, err := dao.Open(ctx, backend, conn, settings)
	if err != nil {
		return nil, err
	}

	opts := StoreOptions{Table: settings.StateTable, FormatDate: cfg.FormatDate == nil || *cfg.FormatDate}
	if cfg.DDLFile != "" {
		ddl, err := os.ReadFile(cfg.DDLFile) //nolint:gosec // G304: path comes from the manifest
		if err != nil {
			_ = db.Close()
			return nil, wrap(err, "read state manager ddl")
		}
		opts.DDL = string(ddl)
	}

	s, err := NewSQLStore(ctx, db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open backend and creates the table if needed.
func NewSQLStore(ctx context.Context, db *dao.DB, opts StoreOptions) (*SQLStore, error) {
	if opts.Table == "" {
		opts.Table = config.DefaultStateTable
	}
	s := &SQLStore{
		db:      db.DB,
		dialect: db.Dialect,
		table:   opts.Table,
		layout:  LayoutMilli,
		clock:   &clock{now: time.Now, tick: time.Millisecond},
	}
	if opts.FormatDate {
		s.layout = LayoutMicro
		s.clock.tick = time.Microsecond
	}

	ddl := opts.DDL
	if ddl == "" {
		ddl = defaultDDL
	}
	if err := s.ensureTable(ctx, strings.ReplaceAll(ddl, "{{table}}", s.table)); err != nil {
		return nil, wrap(err, "create state manager table")
	}
	return s, nil
}

func (s *SQLStore) ensureTable(ctx context.Context, ddl string) error {
	rows, err := s.db.QueryContext(ctx, "SELECT 1 FROM "+s.table+" WHERE 1 = 0")
	if err == nil {
		return rows.Close()
	}
	_, err = s.db.ExecContext(ctx, ddl)
	return err
}

// Insert writes a new row.
func (s *SQLStore) Insert(ctx context.Context, rec *StateRecord) error {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table, strings.Join(columns, ", "), marks)

	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(q), s.values(rec)...)
	return err
}

// Update rewrites the row with rec.StateID. state_id and correlation_id_in
// are never changed.
func (s *SQLStore) Update(ctx context.Context, rec *StateRecord) error {
	vals := s.values(rec)
	sets := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for i, col := range columns {
		if col == "state_id" || col == "correlation_id_in" {
			continue
		}
		sets = append(sets, col+" = ?")
		args = append(args, vals[i])
	}
	args = append(args, rec.StateID)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE state_id = ?", s.table, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("state %s not found", rec.StateID)
	}
	return nil
}

// Current returns the most recent matching row, or nil.
func (s *SQLStore) Current(ctx context.Context, cq CurrentQuery) (*StateRecord, error) {
	where := []string{"job_id = ?", "source_name = ?"}
	args := []interface{}{cq.JobID, cq.SourceName}
	if cq.Entity != "" {
		where = append(where, "source_entity = ?")
		args = append(args, cq.Entity)
		if cq.Filter != "" {
			where = append(where, "source_filter = ?")
			args = append(args, cq.Filter)
		}
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY updated_on DESC LIMIT 1",
		strings.Join(columns, ", "), s.table, strings.Join(where, " AND "))
	recs, err := s.query(ctx, q, args...)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// LastRecord returns the most recent non-empty last_record_pulled for
// (manifest, entity).
func (s *SQLStore) LastRecord(ctx context.Context, manifest, entity string) (string, bool, error) {
	q := fmt.Sprintf("SELECT last_record_pulled FROM %s WHERE manifest_name = ? AND source_entity = ? "+
		"AND last_record_pulled IS NOT NULL AND last_record_pulled <> '' ORDER BY updated_on DESC LIMIT 1", s.table)

	var last sql.NullString
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(q), manifest, entity).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return last.String, last.Valid, nil
}

// History returns the distinct source entities recorded for (source, manifest).
func (s *SQLStore) History(ctx context.Context, sourceName, manifest string) (map[string]struct{}, error) {
	q := fmt.Sprintf("SELECT DISTINCT source_entity FROM %s WHERE source_name = ? AND manifest_name = ? "+
		"AND source_entity IS NOT NULL", s.table)

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), sourceName, manifest)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var entity string
		if err := rows.Scan(&entity); err != nil {
			return nil, err
		}
		seen[entity] = struct{}{}
	}
	return seen, rows.Err()
}

// ListByStatus returns the rows of a manifest in status, oldest first.
func (s *SQLStore) ListByStatus(ctx context.Context, manifest string, status Status) ([]StateRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE manifest_name = ? AND status = ? ORDER BY updated_on",
		strings.Join(columns, ", "), s.table)
	return s.query(ctx, q, manifest, string(status))
}

// ListByJob returns every row of a job, oldest first.
func (s *SQLStore) ListByJob(ctx context.Context, jobID string) ([]StateRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE job_id = ? ORDER BY updated_on",
		strings.Join(columns, ", "), s.table)
	return s.query(ctx, q, jobID)
}

// ListByRun returns every row written by a run, oldest first.
func (s *SQLStore) ListByRun(ctx context.Context, runID string) ([]StateRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE run_id = ? ORDER BY updated_on",
		strings.Join(columns, ", "), s.table)
	return s.query(ctx, q, runID)
}

// Now implements Store.
func (s *SQLStore) Now() time.Time {
	return s.clock.Now()
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) query(ctx context.Context, q string, args ...interface{}) ([]StateRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StateRecord
	for rows.Next() {
		raw := make([]sql.NullString, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rec, err := decodeRow(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// values renders rec in column order.
func (s *SQLStore) values(r *StateRecord) []interface{} {
	var count interface{}
	if r.RecordCount != nil {
		count = strconv.Itoa(*r.RecordCount)
	}
	return []interface{}{
		r.StateID, r.RunID, r.JobID, text(r.CorrelationIDIn), text(r.CorrelationIDOut),
		string(r.Action), string(r.Status), r.SourceName, r.SourceType, r.SinkName, r.SinkType,
		text(r.SourceEntity), text(r.SourceFilter), text(r.SinkEntity), text(r.SinkFilter),
		text(r.FirstRecordPulled), text(r.LastRecordPulled), r.GitSHA,
		s.stamp(r.SourcingStartTime), s.stamp(r.SourcingEndTime), s.stamp(r.SinkingStartTime), s.stamp(r.SinkingEndTime),
		r.UpdatedOn.UTC().Format(s.layout), count, r.ManifestName,
	}
}

func (s *SQLStore) stamp(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(s.layout)
}

// text stores empty strings as NULL.
func text(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func decodeRow(raw []sql.NullString) (StateRecord, error) {
	get := func(i int) string { return raw[i].String }
	ts := func(i int) (*time.Time, error) {
		if !raw[i].Valid || raw[i].String == "" {
			return nil, nil
		}
		t, err := time.Parse(parseLayout, raw[i].String)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", columns[i], err)
		}
		return &t, nil
	}

	rec := StateRecord{
		StateID: get(0), RunID: get(1), JobID: get(2),
		CorrelationIDIn: get(3), CorrelationIDOut: get(4),
		Action: Action(get(5)), Status: Status(get(6)),
		SourceName: get(7), SourceType: get(8), SinkName: get(9), SinkType: get(10),
		SourceEntity: get(11), SourceFilter: get(12), SinkEntity: get(13), SinkFilter: get(14),
		FirstRecordPulled: get(15), LastRecordPulled: get(16), GitSHA: get(17),
		ManifestName: get(24),
	}

	var err error
	for i, dst := range []**time.Time{&rec.SourcingStartTime, &rec.SourcingEndTime, &rec.SinkingStartTime, &rec.SinkingEndTime} {
		if *dst, err = ts(18 + i); err != nil {
			return rec, err
		}
	}
	updated, err := ts(22)
	if err != nil {
		return rec, err
	}
	if updated != nil {
		rec.UpdatedOn = *updated
	}
	if raw[23].Valid && raw[23].String != "" {
		n, err := strconv.Atoi(raw[23].String)
		if err != nil {
			return rec, fmt.Errorf("column row_count: %w", err)
		}
		rec.RecordCount = &n
	}
	return rec, nil
}

// clock hands out strictly increasing timestamps at the store's precision so
// ORDER BY updated_on is total within a process.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	tick time.Duration
	last time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(c.tick)
	if !t.After(c.last) {
		t = c.last.Add(c.tick)
	}
	c.last = t
	return t
}
