// Package shared holds the CSV and SQL plumbing used by more than one
// adapter.
package shared

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/ajitpratap0/hdm/pkg/compression"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/strings"
)

// ReadCSV reads a CSV stream whose first record is the header. Cells are
// kept as strings. An empty stream yields an empty batch.
func ReadCSV(r io.Reader) (*core.Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	b := &core.Batch{}
	header, err := cr.Read()
	if err == io.EOF {
		return b, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "read csv header")
	}
	b.Columns = header

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return b, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "read csv row")
		}
		row := make([]interface{}, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		b.Rows = append(b.Rows, row)
	}
}

// ReadCSVFile reads path, decompressing it when its extension names a
// known codec.
func ReadCSVFile(path string) (*core.Batch, error) {
	f, err := os.Open(path) //nolint:gosec // G304: paths come from the directory scan
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "open csv file").WithDetail("file", path)
	}
	defer f.Close()

	r, err := compression.NewReader(f, compression.FromExtension(path))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "open decompressor").WithDetail("file", path)
	}
	defer r.Close()

	b, err := ReadCSV(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "parse csv file").WithDetail("file", path)
	}
	return b, nil
}

// WriteCSV writes the header followed by every row. A batch without columns
// writes nothing.
func WriteCSV(w io.Writer, b *core.Batch) error {
	if b == nil || len(b.Columns) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(b.Columns); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "write csv header")
	}
	for _, row := range b.Rows {
		if err := cw.Write(strings.Row(row)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "flush csv")
	}
	return nil
}

// WriteCSVFile creates path and writes b through the given codec.
func WriteCSVFile(path string, b *core.Batch, algo compression.Algorithm) (err error) {
	f, err := os.Create(path) //nolint:gosec // G304: destination is inside the sink directory
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "create csv file").WithDetail("file", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeFile, "close csv file").WithDetail("file", path)
		}
	}()

	w, err := compression.NewWriter(f, algo, compression.Default)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "open compressor")
	}
	if err := WriteCSV(w, b); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "flush compressor").WithDetail("file", path)
	}
	return nil
}
