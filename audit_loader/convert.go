package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// ConvertResult summarizes one CSV → Parquet run.
type ConvertResult struct {
	InputRows   int
	Excluded    int
	Months      int
	OutputRows  int
	OutputBytes int64
}

// convert runs load → normalize → melt → write.
func convert(inputGlob, outputPath string, logger *zap.Logger) (ConvertResult, error) {
	start := time.Now()
	var res ConvertResult

	table, err := LoadTable(inputGlob, logger)
	if err != nil {
		return res, fmt.Errorf("load: %w", err)
	}
	res.InputRows = len(table.Rows)

	nt, err := Normalize(table)
	if err != nil {
		return res, fmt.Errorf("normalize: %w", err)
	}
	res.Excluded = nt.Excluded
	res.Months = len(nt.Months)
	logger.Debug("normalized",
		zap.Int("records", len(nt.Records)),
		zap.Int("excluded", nt.Excluded),
		zap.Strings("months", nt.Months))

	rows, err := Melt(nt)
	if err != nil {
		return res, fmt.Errorf("reshape: %w", err)
	}

	res.OutputRows, err = WriteAuditReports(outputPath, rows)
	if err != nil {
		return res, fmt.Errorf("write: %w", err)
	}
	if fi, err := os.Stat(outputPath); err == nil {
		res.OutputBytes = fi.Size()
	}

	logger.Info("convert complete",
		zap.String("output", outputPath),
		zap.Int("input_rows", res.InputRows),
		zap.Int("excluded_rows", res.Excluded),
		zap.Int("months", res.Months),
		zap.Int("parquet_rows", res.OutputRows),
		zap.Int64("parquet_bytes", res.OutputBytes),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return res, nil
}
