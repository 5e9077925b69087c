package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// CSVReader reads one audit-report CSV file. Every cell is kept as text;
// typed columns are derived later by Normalize.
type CSVReader struct {
	path    string
	file    *os.File
	csv     *csv.Reader
	headers []string
	rowNum  int64
}

func NewCSVReader(path string) (*CSVReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	bufReader := bufio.NewReaderSize(file, 256*1024)

	// Skip UTF-8 BOM if present
	bom, err := bufReader.Peek(3)
	if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		bufReader.Discard(3)
	}

	reader := csv.NewReader(bufReader)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	r := &CSVReader{path: path, file: file, csv: reader}

	headers, err := reader.Read()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("read header %s: empty file", path)
		}
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	r.rowNum++
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}
	r.headers = headers

	return r, nil
}

// Headers returns the trimmed header row.
func (r *CSVReader) Headers() []string {
	return r.headers
}

// Next returns the next data row padded or truncated to the header width.
// Returns nil, io.EOF when done.
func (r *CSVReader) Next() ([]string, error) {
	for {
		row, err := r.csv.Read()
		if err != nil {
			return nil, err
		}
		r.rowNum++

		// Skip empty rows
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}

		out := make([]string, len(r.headers))
		for i := range out {
			if i < len(row) {
				out[i] = strings.ToValidUTF8(row[i], "\uFFFD")
			}
		}
		return out, nil
	}
}

// RowNum returns the current CSV row number (1-based, header included).
func (r *CSVReader) RowNum() int64 {
	return r.rowNum
}

func (r *CSVReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// LoadTable reads every file matching pattern into one Table. Files are read
// in lexical order; the first file fixes the column order and later files are
// realigned to it by name.
func LoadTable(pattern string, logger *zap.Logger) (*Table, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: pattern %q", ErrNoInputFiles, pattern)
	}
	sort.Strings(paths)

	var table *Table
	for _, path := range paths {
		n, err := appendFile(&table, path)
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded input file", zap.String("path", path), zap.Int("rows", n))
	}

	logger.Info("loaded input",
		zap.Int("files", len(paths)),
		zap.Int("rows", len(table.Rows)),
		zap.Int("columns", len(table.Columns)))
	return table, nil
}

func appendFile(table **Table, path string) (int, error) {
	reader, err := NewCSVReader(path)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	headers := reader.Headers()
	if *table == nil {
		if err := checkRequired(path, headers); err != nil {
			return 0, err
		}
		*table = &Table{Columns: append([]string(nil), headers...)}
	}
	t := *table

	positions, err := alignColumns(path, t.Columns, headers)
	if err != nil {
		return 0, err
	}

	var n int
	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, fmt.Errorf("read %s row %d: %w", path, reader.RowNum()+1, err)
		}
		aligned := make([]string, len(t.Columns))
		for i, p := range positions {
			aligned[i] = row[p]
		}
		t.Rows = append(t.Rows, aligned)
		n++
	}
	return n, nil
}

func checkRequired(path string, headers []string) error {
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		seen[h] = true
	}
	var missing []string
	for _, c := range requiredColumns {
		if !seen[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s lacks %s", ErrMissingColumn, path, strings.Join(missing, ", "))
	}
	return nil
}

// alignColumns maps each expected column to its index in headers. The two
// column sets must be identical.
func alignColumns(path string, expected, headers []string) ([]int, error) {
	idx := make(map[string]int, len(headers))
	var dupes []string
	for i, h := range headers {
		if _, ok := idx[h]; ok {
			dupes = append(dupes, h)
			continue
		}
		idx[h] = i
	}
	if len(dupes) > 0 {
		return nil, fmt.Errorf("%w: %s has duplicate columns %s", ErrSchemaMismatch, path, strings.Join(dupes, ", "))
	}

	positions := make([]int, len(expected))
	var missing []string
	for i, c := range expected {
		p, ok := idx[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		positions[i] = p
		delete(idx, c)
	}
	if len(missing) > 0 || len(idx) > 0 {
		extra := make([]string, 0, len(idx))
		for c := range idx {
			extra = append(extra, c)
		}
		sort.Strings(extra)
		return nil, fmt.Errorf("%w: %s missing [%s] extra [%s]",
			ErrSchemaMismatch, path, strings.Join(missing, ", "), strings.Join(extra, ", "))
	}
	return positions, nil
}
