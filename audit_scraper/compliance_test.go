package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	compliancePath = "/statistics/sparcs/reports/compliance/pfi_facilities.htm"
	pdfBody        = "%PDF-1.4 compliance"
)

// sparcsSite serves a compliance page, its PDFs and the audit report pages,
// recording the order in which paths are requested.
type sparcsSite struct {
	*httptest.Server
	mu   sync.Mutex
	hits []string
}

func (s *sparcsSite) record(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = append(s.hits, p)
}

func (s *sparcsSite) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hits...)
}

func newSparcsSite(t *testing.T, compliancePage string) *sparcsSite {
	t.Helper()
	site := &sparcsSite{}
	mux := http.NewServeMux()
	mux.HandleFunc(compliancePath, func(w http.ResponseWriter, r *http.Request) {
		site.record(r.URL.Path)
		fmt.Fprint(w, compliancePage)
	})
	mux.HandleFunc("/statistics/sparcs/reports/compliance/2023_report.pdf", func(w http.ResponseWriter, r *http.Request) {
		site.record(r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, pdfBody)
	})
	mux.HandleFunc("/reports/", func(w http.ResponseWriter, r *http.Request) {
		site.record(r.URL.Path)
		fmt.Fprint(w, `<a href="audit/q1_2023.htm">Q1</a>`)
	})
	mux.HandleFunc("/reports/audit/q1_2023.htm", func(w http.ResponseWriter, r *http.Request) {
		site.record(r.URL.Path)
		fmt.Fprint(w, reportPage)
	})
	// Everything else, including 2022_Report.PDF, is a 404.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		site.record(r.URL.Path)
		http.NotFound(w, r)
	})
	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

const complianceLinks = `<ul>
<li><a href="/statistics/sparcs/reports/compliance/2023_report.pdf">2023</a></li>
<li><a href="/statistics/sparcs/reports/compliance/2022_Report.PDF">2022</a></li>
<li><a href="/statistics/sparcs/reports/compliance/2023_report.pdf">2023 again</a></li>
<li><a href="/statistics/sparcs/reports/compliance/1999.pdf">1999</a></li>
<li><a href="2021.pdf">relative</a></li>
<li><a href="/statistics/sparcs/reports/compliance/2020.htm">not a pdf</a></li>
</ul>`

func TestExtractCompliancePDFLinks(t *testing.T) {
	base, err := url.Parse("https://example.org" + compliancePath)
	require.NoError(t, err)

	links, err := extractCompliancePDFLinks(strings.NewReader(complianceLinks), base)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.org/statistics/sparcs/reports/compliance/2023_report.pdf",
		"https://example.org/statistics/sparcs/reports/compliance/2022_Report.PDF",
	}, links)
}

func TestPullCompliancePDFs(t *testing.T) {
	site := newSparcsSite(t, complianceLinks)
	pdfDir := filepath.Join(t.TempDir(), "pdfs")

	s := NewScraper(site.Client(), 2, 0, zap.NewNop())
	res, err := s.PullCompliancePDFs(context.Background(), site.URL+compliancePath, pdfDir)
	require.NoError(t, err, "one failed download does not fail the pull")

	assert.Equal(t, 2, res.Links)
	assert.Equal(t, 1, res.Failed)
	require.Equal(t, []string{filepath.Join(pdfDir, "2023_report.pdf")}, res.Downloaded)

	data, err := os.ReadFile(res.Downloaded[0])
	require.NoError(t, err)
	assert.Equal(t, pdfBody, string(data))
	assert.NoFileExists(t, filepath.Join(pdfDir, "2022_Report.PDF"))
}

func TestPullCompliancePDFsAllFail(t *testing.T) {
	site := newSparcsSite(t, `<a href="/statistics/sparcs/reports/compliance/2022_Report.PDF">2022</a>`)

	res, err := NewScraper(site.Client(), 1, 0, zap.NewNop()).
		PullCompliancePDFs(context.Background(), site.URL+compliancePath, t.TempDir())
	require.ErrorIs(t, err, ErrAllDownloadsFailed)
	assert.Equal(t, 1, res.Failed)
}

func TestPullCompliancePDFsNoLinks(t *testing.T) {
	site := newSparcsSite(t, `<a href="/statistics/sparcs/reports/compliance/notes.htm">notes</a>`)
	pdfDir := filepath.Join(t.TempDir(), "pdfs")

	_, err := NewScraper(site.Client(), 1, 0, zap.NewNop()).
		PullCompliancePDFs(context.Background(), site.URL+compliancePath, pdfDir)
	require.ErrorIs(t, err, ErrNoComplianceLinks)
	assert.NoDirExists(t, pdfDir)
}

func TestDownloadPDFRejectsOtherExtensions(t *testing.T) {
	site := newSparcsSite(t, "")
	s := NewScraper(site.Client(), 1, 0, zap.NewNop())

	_, err := s.downloadPDF(context.Background(), site.URL+"/statistics/sparcs/reports/compliance/2023.htm", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a PDF")
	assert.Empty(t, site.requested(), "nothing is fetched for a non-PDF link")
}

func TestRunPipeline(t *testing.T) {
	site := newSparcsSite(t, complianceLinks)
	dir := t.TempDir()
	cfg := PipelineConfig{
		ComplianceURL: site.URL + compliancePath,
		PDFDir:        filepath.Join(dir, "pdfs"),
		AuditURL:      site.URL + "/reports/",
		OutDir:        filepath.Join(dir, "output"),
	}

	require.NoError(t, NewScraper(site.Client(), 1, 0, zap.NewNop()).RunPipeline(context.Background(), cfg))
	assert.FileExists(t, filepath.Join(cfg.PDFDir, "2023_report.pdf"))
	assert.FileExists(t, filepath.Join(cfg.OutDir, "q1_2023.csv"))

	// One worker keeps the request order deterministic.
	assert.Equal(t, []string{
		compliancePath,
		"/statistics/sparcs/reports/compliance/2023_report.pdf",
		"/statistics/sparcs/reports/compliance/2022_Report.PDF",
		"/reports/",
		"/reports/audit/q1_2023.htm",
	}, site.requested())
}

func TestRunPipelineStopsAtFirstFailure(t *testing.T) {
	site := newSparcsSite(t, `<p>no links today</p>`)
	dir := t.TempDir()
	cfg := PipelineConfig{
		ComplianceURL: site.URL + compliancePath,
		PDFDir:        filepath.Join(dir, "pdfs"),
		AuditURL:      site.URL + "/reports/",
		OutDir:        filepath.Join(dir, "output"),
	}

	err := NewScraper(site.Client(), 1, 0, zap.NewNop()).RunPipeline(context.Background(), cfg)
	require.ErrorIs(t, err, ErrNoComplianceLinks)
	assert.Contains(t, err.Error(), "compliance pdfs")
	assert.Equal(t, []string{compliancePath}, site.requested(), "audit reports are not fetched")
	assert.NoDirExists(t, cfg.OutDir)
}

func TestComplianceCommand(t *testing.T) {
	site := newSparcsSite(t, complianceLinks)
	pdfDir := filepath.Join(t.TempDir(), "pdfs")
	t.Setenv("SPARCS_PDF_DIR", pdfDir)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"compliance", "--compliance-url", site.URL + compliancePath, "--rate", "0", "--log-level", "error"})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(pdfDir, "2023_report.pdf"))
}
