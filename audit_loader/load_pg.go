package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
)

//go:embed sql/schema.sql
var schema string

const defaultPgBatchSize = 5000

var submissionColumns = []string{
	"load_batch_id",
	"pfi",
	"facility",
	"latest_submission",
	"report_type",
	"date_published",
	"report_year",
	"report_published_date",
	"report_category",
	"report_month",
	"records_submitted",
}

// LoadResult summarizes one Parquet → PostgreSQL load.
type LoadResult struct {
	BatchID uuid.UUID
	Rows    int64
}

// loadParquetToPg appends every row of an audit_reports Parquet file to
// audit_report_submissions, committing every batchSize rows.
func loadParquetToPg(ctx context.Context, parquetPath, connStr string, batchSize int, logger *zap.Logger) (LoadResult, error) {
	start := time.Now()
	if batchSize <= 0 {
		batchSize = defaultPgBatchSize
	}

	f, err := os.Open(parquetPath)
	if err != nil {
		return LoadResult{}, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[AuditReportRow](f)
	defer reader.Close()

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return LoadResult{}, fmt.Errorf("parse connection: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return LoadResult{}, fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return LoadResult{}, fmt.Errorf("ping: %w", err)
	}
	if err := initializeSchema(ctx, pool); err != nil {
		return LoadResult{}, err
	}

	result := LoadResult{BatchID: uuid.New()}
	logger.Info("loading parquet into postgres",
		zap.String("input", parquetPath),
		zap.Int64("rows", reader.NumRows()),
		zap.String("load_batch_id", result.BatchID.String()))

	buf := make([]AuditReportRow, batchSize)
	lastLog := time.Now()
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			copied, err := copyBatch(ctx, pool, result.BatchID, buf[:n])
			if err != nil {
				return result, err
			}
			result.Rows += copied
		}

		if time.Since(lastLog) >= 5*time.Second {
			logger.Info("progress", zap.Int64("rows", result.Rows), zap.Int64("total", reader.NumRows()))
			lastLog = time.Now()
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return result, fmt.Errorf("read parquet: %w", readErr)
		}
	}

	logger.Info("load complete",
		zap.Int64("rows", result.Rows),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return result, nil
}

func initializeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// copyBatch COPYs rows inside a single transaction.
func copyBatch(ctx context.Context, pool *pgxpool.Pool, batchID uuid.UUID, rows []AuditReportRow) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id := pgtype.UUID{Bytes: batchID, Valid: true}
	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"audit_report_submissions"},
		submissionColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := &rows[i]
			return []any{
				id,
				r.PFI,
				r.Facility,
				daysToPgDate(r.LatestSubmission),
				r.ReportType,
				r.DatePublished,
				optToPgText(r.ReportYear),
				daysToPgDate(r.ReportPublishedDate),
				optToPgText(r.ReportCategory),
				r.ReportMonth,
				optToPgInt4(r.RecordsSubmitted),
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy audit_report_submissions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return copied, nil
}

func daysToPgDate(days *int32) pgtype.Date {
	t := daysToDate(days)
	if t == nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func optToPgText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func optToPgInt4(v *int32) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: *v, Valid: true}
}
