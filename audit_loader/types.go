package main

import "time"

// Source CSV column names. The scraper writes exactly these headers.
const (
	colPFI              = "PFI"
	colFacility         = "FACILITY"
	colLatestSubmission = "Latest Submission"
	colReportType       = "Report Type"
	colDatePublished    = "Date Published"
	colTotal            = "TOTAL"

	colReportYear          = "Report_Year"
	colReportPublishedDate = "Report_Published_Date"
	colReportCategory      = "Report_Category"
)

// requiredColumns must be present in every input file.
var requiredColumns = []string{colPFI, colFacility, colLatestSubmission, colReportType, colDatePublished}

// identifierColumns are carried verbatim onto every melted row. Every other
// column left after normalization is a month.
var identifierColumns = map[string]bool{
	colPFI:                 true,
	colFacility:            true,
	colLatestSubmission:    true,
	colReportType:          true,
	colDatePublished:       true,
	colReportYear:          true,
	colReportPublishedDate: true,
	colReportCategory:      true,
}

// Table is a text-only, column-named grid. Every row has len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// AuditRecord is one facility/report row after normalization: identifier
// columns typed, month cells still text in header order.
type AuditRecord struct {
	PFI              string
	Facility         string
	LatestSubmission *time.Time
	ReportType       string
	DatePublished    string

	ReportYear          *string
	ReportPublishedDate *time.Time
	ReportCategory      *string

	// Months is parallel to NormalizedTable.Months.
	Months []string
}

// NormalizedTable is the output of Normalize.
type NormalizedTable struct {
	Months  []string
	Records []AuditRecord
	// Excluded counts summary rows (PFI containing TOTAL, or empty).
	Excluded int
}

// AuditReportRow is the long-format Parquet row: one facility × report × month.
//
// Dates are stored as Parquet DATE (int32 days since the Unix epoch).
// Column names keep the source spelling so downstream notebooks can
// query them unchanged. A blank month cell gives a null Records_Submitted.
type AuditReportRow struct {
	PFI                 string  `parquet:"PFI,dict"`
	Facility            string  `parquet:"FACILITY,dict"`
	LatestSubmission    *int32  `parquet:"Latest Submission,optional,date"`
	ReportType          string  `parquet:"Report Type,dict"`
	DatePublished       string  `parquet:"Date Published,dict"`
	ReportYear          *string `parquet:"Report_Year,optional"`
	ReportPublishedDate *int32  `parquet:"Report_Published_Date,optional,date"`
	ReportCategory      *string `parquet:"Report_Category,optional"`
	ReportMonth         string  `parquet:"Report_Month,dict"`
	RecordsSubmitted    *int32  `parquet:"Records_Submitted,optional"`
}

var unixEpoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// dateToDays converts a calendar date to Parquet DATE days.
func dateToDays(t *time.Time) *int32 {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	days := int32(d.Sub(unixEpoch).Hours() / 24)
	return &days
}

// daysToDate is the inverse of dateToDays.
func daysToDate(days *int32) *time.Time {
	if days == nil {
		return nil
	}
	t := unixEpoch.AddDate(0, 0, int(*days))
	return &t
}
