package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newReportServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/reports/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<ul>
<li><a href="audit/q1_2023.htm">Q1</a></li>
<li><a href="audit/missing.htm">Missing</a></li>
<li><a href="audit/notable.htm">No table</a></li>
<li><a href="compliance/q1.htm">Compliance</a></li>
</ul>`)
	})
	mux.HandleFunc("/reports/audit/q1_2023.htm", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		fmt.Fprint(w, reportPage)
	})
	mux.HandleFunc("/reports/audit/notable.htm", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<p>nothing here</p>`)
	})
	mux.HandleFunc("/reports/audit/missing.htm", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestScraperRun(t *testing.T) {
	srv, hits := newReportServer(t)
	outDir := filepath.Join(t.TempDir(), "output")

	s := NewScraper(srv.Client(), 2, 0, zap.NewNop())
	res, err := s.Run(context.Background(), srv.URL+"/reports/", outDir)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Links)
	assert.Equal(t, 2, res.Failed)
	require.Equal(t, []string{filepath.Join(outDir, "q1_2023.csv")}, res.Written)
	assert.Equal(t, int32(4), hits.Load())

	records := readCSV(t, res.Written[0])
	require.Len(t, records, 3)
	assert.Equal(t, []string{"PFI", "FACILITY", "Latest Submission", "Jan", "Feb", "TOTAL", "Report Type", "Date Published"}, records[0])
	assert.Equal(t, []string{"1001", "Acme", "01/15/23", "1,200", "950", "2,150", "Quarterly Report 2023", "Published 03/01/2023"}, records[1])

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestScraperRunOverwritesExistingCSV(t *testing.T) {
	srv, _ := newReportServer(t)
	outDir := t.TempDir()
	stale := filepath.Join(outDir, "q1_2023.csv")
	require.NoError(t, os.WriteFile(stale, []byte("old\n"), 0644))

	_, err := NewScraper(srv.Client(), 1, 100, zap.NewNop()).Run(context.Background(), srv.URL+"/reports/", outDir)
	require.NoError(t, err)
	assert.Len(t, readCSV(t, stale), 3)
}

func TestScraperRunListingFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := NewScraper(srv.Client(), 1, 0, zap.NewNop()).Run(context.Background(), srv.URL, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestScraperRunNoLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="compliance.htm">x</a>`)
	}))
	t.Cleanup(srv.Close)
	outDir := filepath.Join(t.TempDir(), "output")

	res, err := NewScraper(srv.Client(), 1, 0, zap.NewNop()).Run(context.Background(), srv.URL, outDir)
	require.NoError(t, err)
	assert.Zero(t, res.Links)
	assert.NoDirExists(t, outDir)
}

func TestScraperRunCancelled(t *testing.T) {
	srv, _ := newReportServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScraper(srv.Client(), 1, 0, zap.NewNop()).Run(ctx, srv.URL+"/reports/", t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRootCommandFlags(t *testing.T) {
	srv, _ := newReportServer(t)
	outDir := t.TempDir()
	t.Setenv("SPARCS_OUT_DIR", outDir)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--url", srv.URL + "/reports/", "--rate", "0", "--log-level", "error"})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(outDir, "q1_2023.csv"))
}

func TestScraperRunSameBaseNameWritesSeparateFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/reports/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="audit/2023.htm">a</a><a href="audit2/2023.htm">b</a>`)
	})
	for _, p := range []string{"/reports/audit/2023.htm", "/reports/audit2/2023.htm"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, strings.Replace(reportPage, "Acme", r.URL.Path, 1))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	outDir := t.TempDir()

	res, err := NewScraper(srv.Client(), 2, 0, zap.NewNop()).Run(context.Background(), srv.URL+"/reports/", outDir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(outDir, "2023.csv"),
		filepath.Join(outDir, "2023_1.csv"),
	}, res.Written)

	assert.Equal(t, "/reports/audit/2023.htm", readCSV(t, filepath.Join(outDir, "2023.csv"))[1][1])
	assert.Equal(t, "/reports/audit2/2023.htm", readCSV(t, filepath.Join(outDir, "2023_1.csv"))[1][1])
}
