// Package chunk splits oversized CSV files into bounded pieces, each carrying
// the original header and a fresh correlation id in its name.
package chunk

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ajitpratap0/hdm/pkg/errors"
)

// Chunker splits CSV files into pieces of at most Size data rows.
type Chunker struct {
	Size          int
	Prefix        string
	ArchiveFolder string
}

// Result lists what Split produced.
type Result struct {
	// Files are the created files in row order. When Copied is true it holds
	// the single copied file.
	Files  []string
	Copied bool
	Rows   int
}

// FileName returns the chunk file name for id.
func FileName(prefix, id string) string {
	return prefix + "_" + id + ".csv"
}

// CorrelationID extracts the id embedded in a file name: the text after
// "<prefix>_" up to the first dot.
func CorrelationID(prefix, name string) (string, bool) {
	marker := prefix + "_"
	i := strings.Index(name, marker)
	if i < 0 {
		return "", false
	}
	id := name[i+len(marker):]
	if j := strings.IndexByte(id, '.'); j >= 0 {
		id = id[:j]
	}
	return id, id != ""
}

// Split chunks srcPath into destDir. A file with at most Size data rows is
// copied unchanged. On failure every file written for srcPath is removed and
// srcPath is left untouched.
func (c *Chunker) Split(ctx context.Context, srcPath, destDir string) (res *Result, err error) {
	if c.Size < 1 {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("chunk size must be positive, got %d", c.Size))
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "create chunk directory")
	}

	f, err := os.Open(srcPath) //nolint:gosec // G304: paths come from the directory scan
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "open file to chunk")
	}
	defer f.Close()

	res = &Result{}
	defer func() {
		if err != nil {
			for _, p := range res.Files {
				_ = os.Remove(p)
			}
			res = nil
		}
	}()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	header, err := r.Read()
	if err == io.EOF {
		return res, c.copyFile(srcPath, destDir, res)
	}
	if err != nil {
		return res, errors.Wrap(err, errors.ErrorTypeData, "read header").WithDetail("file", srcPath)
	}

	// Buffer one chunk plus one row to decide between copy and split.
	buf := make([][]string, 0, c.Size+1)
	for len(buf) <= c.Size {
		row, rerr := r.Read()
		if rerr == io.EOF {
			res.Rows = len(buf)
			return res, c.copyFile(srcPath, destDir, res)
		}
		if rerr != nil {
			return res, errors.Wrap(rerr, errors.ErrorTypeData, "read row").WithDetail("file", srcPath)
		}
		buf = append(buf, row)
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(err, errors.ErrorTypeTimeout, "chunking cancelled")
		}
		n := len(buf)
		if n > c.Size {
			n = c.Size
		}
		if err := c.writeChunk(destDir, header, buf[:n], res); err != nil {
			return res, err
		}
		res.Rows += n
		buf = append(buf[:0], buf[n:]...)

		for len(buf) < c.Size {
			row, rerr := r.Read()
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return res, errors.Wrap(rerr, errors.ErrorTypeData, "read row").WithDetail("file", srcPath)
			}
			buf = append(buf, row)
		}
		if len(buf) == 0 {
			return res, nil
		}
	}
}

func (c *Chunker) writeChunk(destDir string, header []string, rows [][]string, res *Result) error {
	path := filepath.Join(destDir, FileName(c.prefix(), newID()))
	out, err := os.Create(path) //nolint:gosec // G304: name is generated
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "create chunk")
	}
	res.Files = append(res.Files, path)

	w := csv.NewWriter(out)
	_ = w.Write(header)
	_ = w.WriteAll(rows)
	if err := w.Error(); err != nil {
		_ = out.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "write chunk").WithDetail("file", path)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "close chunk").WithDetail("file", path)
	}
	return nil
}

func (c *Chunker) copyFile(srcPath, destDir string, res *Result) error {
	dest := filepath.Join(destDir, filepath.Base(srcPath))
	if same(srcPath, dest) {
		res.Copied = true
		return nil
	}

	in, err := os.Open(srcPath) //nolint:gosec // G304: paths come from the directory scan
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "open file to copy")
	}
	defer in.Close()

	out, err := os.Create(dest) //nolint:gosec // G304: destination is inside the sink directory
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "create copy")
	}
	res.Files = append(res.Files, dest)
	res.Copied = true

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "copy file").WithDetail("file", srcPath)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "close copy")
	}
	return nil
}

// Archive moves srcPath into the archive folder next to it, so a later scan
// of the directory does not pick it up again.
func (c *Chunker) Archive(srcPath string) (string, error) {
	dir := filepath.Join(filepath.Dir(srcPath), c.archiveFolder())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "create archive folder")
	}
	dest := filepath.Join(dir, filepath.Base(srcPath))
	if err := os.Rename(srcPath, dest); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "archive file").WithDetail("file", srcPath)
	}
	return dest, nil
}

func (c *Chunker) prefix() string {
	if c.Prefix == "" {
		return "hdm"
	}
	return c.Prefix
}

func (c *Chunker) archiveFolder() string {
	if c.ArchiveFolder == "" {
		return "archive"
	}
	return c.ArchiveFolder
}

func newID() string {
	u := uuid.New()
	return strings.ReplaceAll(u.String(), "-", "")
}

func same(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}
