package main

import (
	"fmt"
	"strconv"
	"strings"
)

// Melt turns one row per facility report into one row per facility report
// and month. Rows are emitted month-major: every record for the first month
// column, then every record for the second, and so on.
func Melt(nt *NormalizedTable) ([]AuditReportRow, error) {
	rows := make([]AuditReportRow, 0, len(nt.Records)*len(nt.Months))
	for m, month := range nt.Months {
		for i := range nt.Records {
			rec := &nt.Records[i]
			count, err := parseRecordCount(rec.Months[m])
			if err != nil {
				return nil, fmt.Errorf("PFI %s month %q: %w", rec.PFI, month, err)
			}
			rows = append(rows, AuditReportRow{
				PFI:                 rec.PFI,
				Facility:            rec.Facility,
				LatestSubmission:    dateToDays(rec.LatestSubmission),
				ReportType:          rec.ReportType,
				DatePublished:       rec.DatePublished,
				ReportYear:          rec.ReportYear,
				ReportPublishedDate: dateToDays(rec.ReportPublishedDate),
				ReportCategory:      rec.ReportCategory,
				ReportMonth:         month,
				RecordsSubmitted:    count,
			})
		}
	}
	return rows, nil
}

// parseRecordCount strips thousands separators and parses a base-10 int32.
// A blank cell is nil: the facility reported nothing for that month.
func parseRecordCount(s string) (*int32, error) {
	clean := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if clean == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(clean, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecordCount, s)
	}
	v := int32(n)
	return &v, nil
}
