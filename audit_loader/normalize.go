package main

import (
	"fmt"
	"strings"
	"time"
)

const (
	latestSubmissionLayout = "1/2/06"
	publishedDateLayout    = "1/2/2006"
)

// Normalize drops the TOTAL column, removes summary rows and derives the
// report year, category and publication date for every remaining row.
func Normalize(t *Table) (*NormalizedTable, error) {
	pfiIdx := t.Index(colPFI)
	facilityIdx := t.Index(colFacility)
	latestIdx := t.Index(colLatestSubmission)
	typeIdx := t.Index(colReportType)
	publishedIdx := t.Index(colDatePublished)
	if pfiIdx < 0 || facilityIdx < 0 || latestIdx < 0 || typeIdx < 0 || publishedIdx < 0 {
		return nil, fmt.Errorf("%w: table has columns %v", ErrMissingColumn, t.Columns)
	}

	// Month columns: everything that is neither an identifier nor TOTAL,
	// in header order.
	var (
		months   []string
		monthIdx []int
	)
	for i, c := range t.Columns {
		if identifierColumns[c] || c == colTotal {
			continue
		}
		months = append(months, c)
		monthIdx = append(monthIdx, i)
	}

	out := &NormalizedTable{Months: months, Records: make([]AuditRecord, 0, len(t.Rows))}
	for n, row := range t.Rows {
		pfi := row[pfiIdx]
		if isSummaryRow(pfi) {
			out.Excluded++
			continue
		}

		latest, err := parseDate(row[latestIdx], latestSubmissionLayout)
		if err != nil {
			return nil, fmt.Errorf("row %d (PFI %s) %s: %w", n+1, pfi, colLatestSubmission, err)
		}
		published, err := parsePublishedDate(row[publishedIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d (PFI %s) %s: %w", n+1, pfi, colDatePublished, err)
		}

		rec := AuditRecord{
			PFI:                 pfi,
			Facility:            row[facilityIdx],
			LatestSubmission:    latest,
			ReportType:          row[typeIdx],
			DatePublished:       row[publishedIdx],
			ReportYear:          reportYear(row[typeIdx]),
			ReportPublishedDate: published,
			ReportCategory:      reportCategory(row[typeIdx]),
			Months:              make([]string, len(monthIdx)),
		}
		for i, mi := range monthIdx {
			rec.Months[i] = row[mi]
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// isSummaryRow reports report-level aggregate rows. An empty PFI is treated
// as a summary row too: those are blank spacer or footer rows.
func isSummaryRow(pfi string) bool {
	pfi = strings.TrimSpace(pfi)
	return pfi == "" || strings.Contains(pfi, "TOTAL")
}

// reportYear is the last space-delimited token of Report Type.
func reportYear(reportType string) *string {
	tok := lastToken(reportType)
	if tok == "" {
		return nil
	}
	return &tok
}

// reportCategory is the first two space-delimited tokens of Report Type.
// Nil when there are fewer than two.
func reportCategory(reportType string) *string {
	parts := strings.Split(strings.TrimSpace(reportType), " ")
	if len(parts) < 2 {
		return nil
	}
	cat := parts[0] + " " + parts[1]
	return &cat
}

func lastToken(s string) string {
	parts := strings.Split(strings.TrimSpace(s), " ")
	return parts[len(parts)-1]
}

// parsePublishedDate parses the last token of Date Published. A token with no
// slash or no digit ("Unknown Date", "Pending") carries no date and yields nil;
// a slash-and-digit token that does not parse is an error.
func parsePublishedDate(datePublished string) (*time.Time, error) {
	tok := lastToken(datePublished)
	if !strings.Contains(tok, "/") || !strings.ContainsAny(tok, "0123456789") {
		return nil, nil
	}
	return parseDate(tok, publishedDateLayout)
}

// parseDate returns nil for an empty value and ErrUnparsableDate for a
// value that does not match layout.
func parseDate(value, layout string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnparsableDate, value)
	}
	return &t, nil
}
