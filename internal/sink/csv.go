//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package sink writes tables to delimited files.
package sink

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// DefaultDelimiter separates fields in every file written.
const DefaultDelimiter = ';'

// Writer writes one file per table into a directory.
type Writer struct {
	dir       string
	delimiter rune
}

// Option configures a Writer.
type Option func(*Writer)

// WithDelimiter sets the field delimiter.
func WithDelimiter(d rune) Option {
	return func(w *Writer) {
		w.delimiter = d
	}
}

// NewWriter returns a Writer for dir.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{dir: dir, delimiter: DefaultDelimiter}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RawFileName names the file for a table extracted from a source.
func RawFileName(source, logical string) string {
	return source + "_" + logical + ".csv"
}

// FileMode is the permission of written files.
const FileMode os.FileMode = 0o644

// CleanFileName names the file for an output table.
func CleanFileName(name string) string {
	return name + ".csv"
}

// Write writes t with a header row to fileName inside the writer's
// directory and returns the full path. The file is written to a temporary
// name first and renamed into place, so readers never see a partial file.
func (w *Writer) Write(fileName string, t *table.Table) (string, error) {
	if t == nil {
		return "", fmt.Errorf("no table to write to %s", fileName)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", w.dir, err)
	}

	path := filepath.Join(w.dir, fileName)
	tmp, err := os.CreateTemp(w.dir, "."+fileName+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	buf := bufio.NewWriter(tmp)
	cw := csv.NewWriter(buf)
	cw.Comma = w.delimiter

	if err := cw.Write(t.Columns); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write header of %s: %w", path, err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, c := range t.Columns {
			record[i] = FormatValue(row[c])
		}
		if err := cw.Write(record); err != nil {
			tmp.Close()
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(FileMode); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to set mode of %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", path, err)
	}

	logging.Info().
		Str("table", t.Name).
		Str("path", path).
		Int("rows", t.Len()).
		Msg("Wrote file")

	return path, nil
}

// FormatValue renders a scalar as file text. Null and NaN are the empty
// string.
// Dates at midnight are written without a time part.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case decimal.Decimal:
		return x.String()
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.DateTime)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}
