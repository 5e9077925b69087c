package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultListingURL = "https://www.health.ny.gov/statistics/sparcs/reports/"
	defaultOutDir     = "output"
	defaultWorkers    = 4
	defaultRate       = 2.0
	defaultTimeout    = 30 * time.Second
	userAgent         = "sparcs-audit-scraper/1.0"
	maxBodyBytes      = 32 << 20
)

// Scraper fetches the SPARCS listing page and every audit report it links to.
type Scraper struct {
	client  *http.Client
	limiter *rate.Limiter
	workers int
	logger  *zap.Logger
}

// ScrapeResult summarizes one run.
type ScrapeResult struct {
	Links   int
	Written []string
	Failed  int
}

// NewScraper builds a Scraper. rps <= 0 disables rate limiting and
// workers <= 0 falls back to the default.
func NewScraper(client *http.Client, workers int, rps float64, logger *zap.Logger) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Scraper{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		workers: workers,
		logger:  logger,
	}
}

// Run collects the audit links on listingURL and writes one CSV per report
// into outDir. A report that cannot be fetched or parsed is logged and
// skipped; only a listing failure or cancellation fails the run.
func (s *Scraper) Run(ctx context.Context, listingURL, outDir string) (ScrapeResult, error) {
	var res ScrapeResult

	s.logger.Info("fetching listing page", zap.String("url", listingURL))
	links, err := s.FindAuditLinks(ctx, listingURL)
	if err != nil {
		return res, err
	}
	res.Links = len(links)
	if len(links) == 0 {
		s.logger.Warn("no audit links found", zap.String("url", listingURL))
		return res, nil
	}
	s.logger.Info("found audit links", zap.Int("count", len(links)))

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return res, fmt.Errorf("create output dir %s: %w", outDir, err)
	}

	names := uniqueReportNames(links)
	written := make([]string, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, link := range links {
		name := names[i]
		g.Go(func() error {
			out, err := s.scrapeOne(gctx, link, name, outDir)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("report skipped", zap.String("url", link), zap.Error(err))
				return nil
			}
			written[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for _, out := range written {
		if out == "" {
			res.Failed++
			continue
		}
		res.Written = append(res.Written, out)
	}
	s.logger.Info("scrape complete",
		zap.Int("written", len(res.Written)),
		zap.Int("failed", res.Failed))
	return res, nil
}

// FindAuditLinks fetches the listing page and returns its audit links.
func (s *Scraper) FindAuditLinks(ctx context.Context, listingURL string) ([]string, error) {
	base, err := url.Parse(listingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	body, err := s.fetch(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", listingURL, err)
	}
	defer body.Close()
	return extractAuditLinks(body, base)
}

// ScrapeReport fetches one report page and extracts its table.
func (s *Scraper) ScrapeReport(ctx context.Context, reportURL string) (*Report, error) {
	body, err := s.fetch(ctx, reportURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer body.Close()
	return extractReport(body)
}

func (s *Scraper) scrapeOne(ctx context.Context, link, name, outDir string) (string, error) {
	s.logger.Debug("processing report", zap.String("url", link), zap.String("name", name))
	rep, err := s.ScrapeReport(ctx, link)
	if err != nil {
		return "", err
	}
	out := filepath.Join(outDir, name+".csv")
	if err := writeReportCSV(out, rep); err != nil {
		return "", err
	}
	s.logger.Info("saved report", zap.String("file", out), zap.Int("rows", len(rep.Rows)))
	return out, nil
}

func (s *Scraper) fetch(ctx context.Context, target string) (io.ReadCloser, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxBodyBytes), resp.Body}, nil
}

// reportName derives the CSV base name from the last path segment of the
// link, falling back to the one before it and then to audit_report_<index>.
func reportName(link string, index int) string {
	p := link
	if u, err := url.Parse(link); err == nil {
		p = u.Path
	}
	parts := strings.Split(p, "/")
	file := parts[len(parts)-1]
	if file == "" && len(parts) > 1 {
		file = parts[len(parts)-2]
	}
	name := strings.TrimSuffix(file, path.Ext(file))
	if name == "" {
		return fmt.Sprintf("audit_report_%d", index)
	}
	return name
}

// uniqueReportNames names every link with reportName, suffixing _<index> when
// an earlier link already took the name so no two reports share a file.
func uniqueReportNames(links []string) []string {
	names := make([]string, len(links))
	taken := make(map[string]bool, len(links))
	for i, link := range links {
		name := reportName(link, i)
		if taken[name] {
			name = fmt.Sprintf("%s_%d", name, i)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

// writeReportCSV overwrites path with the report header and rows.
func writeReportCSV(path string, rep *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(rep.Header); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rep.Rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
