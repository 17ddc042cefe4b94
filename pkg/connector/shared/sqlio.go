package shared

import (
	"database/sql"
	"strings"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/dao"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/json"
)

// Watermark is the incremental-load column of a database source.
type Watermark struct {
	Column string      `mapstructure:"column"`
	Offset interface{} `mapstructure:"offset"`
}

// Bound returns the lower bound for the next pull: the cursor's column value
// when the cursor has one, else the configured offset.
func (w Watermark) Bound(cursor core.Cursor) interface{} {
	v, ok := cursor.Value(w.Column)
	if !ok {
		v = w.Offset
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

// SelectSQL builds the pull query for table and its arguments. Without a
// watermark column it selects the whole table. With one, rows come back in
// column order, above the bound when the cursor or the offset gives one; a
// first run without an offset pulls everything.
func SelectSQL(d dao.Dialect, table string, w Watermark, cursor core.Cursor) (string, []interface{}) {
	q := "SELECT * FROM " + d.QuoteQualified(table)
	if w.Column == "" {
		return q, nil
	}
	col := d.Quote(w.Column)
	bound := w.Bound(cursor)
	if bound == nil {
		return q + " ORDER BY " + col, nil
	}
	return d.Rebind(q + " WHERE " + col + " > ? ORDER BY " + col), []interface{}{bound}
}

// InsertSQL builds a multi-row INSERT for nrows rows of cols.
func InsertSQL(d dao.Dialect, table string, cols []string, nrows int) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QuoteQualified(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")
	for i := 0; i < nrows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
	return d.Rebind(b.String())
}

// ScanRows drains rows into a batch. Byte slices become strings so the
// batch can be snapshotted and written as text.
func ScanRows(rows *sql.Rows) (*core.Batch, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "read columns")
	}
	b := &core.Batch{Columns: cols}

	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "scan row")
		}
		for i, v := range vals {
			if raw, ok := v.([]byte); ok {
				vals[i] = string(raw)
			}
		}
		b.Rows = append(b.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "iterate rows")
	}
	return b, nil
}

// Flatten lays rows out as InsertSQL bind parameters. Short rows are
// padded with NULL.
func Flatten(rows [][]interface{}, width int) []interface{} {
	args := make([]interface{}, 0, len(rows)*width)
	for _, r := range rows {
		for i := 0; i < width; i++ {
			if i < len(r) {
				args = append(args, r[i])
			} else {
				args = append(args, nil)
			}
		}
	}
	return args
}
