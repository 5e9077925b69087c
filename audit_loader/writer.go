package main

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// rowGroupRows bounds the rows buffered before a row group is flushed.
const rowGroupRows = 250_000

// AuditReportWriter streams AuditReportRow records into one Parquet file.
// Identifier columns repeat for every month of a report, so they are
// dictionary-encoded through the struct tags.
type AuditReportWriter struct {
	path     string
	file     *os.File
	pw       *parquet.GenericWriter[AuditReportRow]
	count    int
	buffered int
}

// NewAuditReportWriter creates path, truncating any previous output.
func NewAuditReportWriter(path string) (*AuditReportWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrOutputNotWritable, path, err)
	}
	pw := parquet.NewGenericWriter[AuditReportRow](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.PageBufferSize(8*1024),
		parquet.DataPageStatistics(true),
		parquet.CreatedBy("sparcs", "1.0", ""),
	)
	return &AuditReportWriter{path: path, file: file, pw: pw}, nil
}

// Write appends rows, cutting a new row group every rowGroupRows rows.
func (w *AuditReportWriter) Write(rows []AuditReportRow) (int, error) {
	var written int
	for len(rows) > 0 {
		chunk := rows
		if room := rowGroupRows - w.buffered; len(chunk) > room {
			chunk = chunk[:room]
		}
		n, err := w.pw.Write(chunk)
		written += n
		w.count += n
		w.buffered += n
		if err != nil {
			return written, fmt.Errorf("%w: write %s: %w", ErrOutputNotWritable, w.path, err)
		}
		if w.buffered >= rowGroupRows {
			if err := w.pw.Flush(); err != nil {
				return written, fmt.Errorf("%w: flush %s: %w", ErrOutputNotWritable, w.path, err)
			}
			w.buffered = 0
		}
		rows = rows[n:]
	}
	return written, nil
}

// Count is the number of rows written so far.
func (w *AuditReportWriter) Count() int {
	return w.count
}

// Close writes the footer and closes the file.
func (w *AuditReportWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("%w: finish %s: %w", ErrOutputNotWritable, w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrOutputNotWritable, w.path, err)
	}
	return nil
}

// WriteAuditReports replaces path with rows and reports how many were written.
func WriteAuditReports(path string, rows []AuditReportRow) (int, error) {
	w, err := NewAuditReportWriter(path)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(rows); err != nil {
		w.Close()
		return w.Count(), err
	}
	if err := w.Close(); err != nil {
		return w.Count(), err
	}
	return w.Count(), nil
}
