package shared

import (
	"io/fs"
	"path/filepath"
	stdstrings "strings"

	"github.com/ajitpratap0/hdm/pkg/compression"
	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/strings"
)

// File is one data file found under a source directory.
type File struct {
	Path string
	Name string
	// Table is derived from the folder the file sits in, relative to the
	// scanned root. Files at the root have no table.
	Table string
}

// HasFormat reports whether name is a file of the given format, optionally
// followed by a compression extension: "a.csv" and "a.csv.gz" are csv.
func HasFormat(name, format string) bool {
	if format == "" {
		format = "csv"
	}
	if compression.FromExtension(name) != compression.None {
		name = stdstrings.TrimSuffix(name, filepath.Ext(name))
	}
	return stdstrings.EqualFold(filepath.Ext(name), "."+format)
}

// WalkFiles lists the files of format under root in lexical order. Folders
// named archive are not descended into.
func WalkFiles(root, archive, format string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && archive != "" && d.Name() == archive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !HasFormat(d.Name(), format) {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		f := File{Path: path, Name: d.Name()}
		if rel != "." {
			f.Table = strings.FolderToTable(filepath.ToSlash(rel))
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "scan directory").WithDetail("directory", root)
	}
	return files, nil
}

// FilePrefix is the prefix of generated file names, defaulted when settings
// were not resolved.
func FilePrefix(s config.Settings) string {
	if s.FilePrefix == "" {
		return config.DefaultFilePrefix
	}
	return s.FilePrefix
}

// ArchiveFolder is the folder processed files are moved to.
func ArchiveFolder(s config.Settings) string {
	if s.ArchiveFolder == "" {
		return config.DefaultArchiveFolder
	}
	return s.ArchiveFolder
}
