package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	defaultComplianceURL = "https://www.health.ny.gov/statistics/sparcs/reports/compliance/pfi_facilities.htm"
	defaultPDFDir        = "pdfs"
)

// Compliance reports are yearly PDFs under the compliance directory.
var compliancePDFHref = regexp.MustCompile(`(?i)^/statistics/sparcs/reports/compliance/2\d{3}.*\.pdf$`)

var (
	ErrNoComplianceLinks  = errors.New("no compliance PDF links found")
	ErrAllDownloadsFailed = errors.New("every compliance PDF download failed")
)

// ComplianceResult summarizes one PDF pull.
type ComplianceResult struct {
	Links      int
	Downloaded []string
	Failed     int
}

// extractCompliancePDFLinks returns the hrefs matching compliancePDFHref,
// resolved against base. The pattern is tested on the raw href, so only
// site-absolute paths qualify.
func extractCompliancePDFLinks(r io.Reader, base *url.URL) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse compliance page: %w", err)
	}

	var links []string
	seen := make(map[string]bool)
	walk(doc, func(n *html.Node) {
		if !isElement(n, "a") {
			return
		}
		href, ok := attr(n, "href")
		if !ok || !compliancePDFHref.MatchString(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links, nil
}

// PullCompliancePDFs downloads every compliance PDF linked from pageURL into
// outDir. Individual downloads may fail; the pull fails when no link is
// found or when not a single PDF could be saved.
func (s *Scraper) PullCompliancePDFs(ctx context.Context, pageURL, outDir string) (ComplianceResult, error) {
	var res ComplianceResult

	base, err := url.Parse(pageURL)
	if err != nil {
		return res, fmt.Errorf("parse compliance url: %w", err)
	}
	s.logger.Info("fetching compliance page", zap.String("url", pageURL))
	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		return res, fmt.Errorf("fetch compliance page %s: %w", pageURL, err)
	}
	links, err := extractCompliancePDFLinks(body, base)
	body.Close()
	if err != nil {
		return res, err
	}
	res.Links = len(links)
	if len(links) == 0 {
		return res, fmt.Errorf("%w on %s", ErrNoComplianceLinks, pageURL)
	}
	s.logger.Info("found compliance PDFs", zap.Int("count", len(links)))

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return res, fmt.Errorf("create pdf dir %s: %w", outDir, err)
	}

	saved := make([]string, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, link := range links {
		g.Go(func() error {
			out, err := s.downloadPDF(gctx, link, outDir)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("pdf skipped", zap.String("url", link), zap.Error(err))
				return nil
			}
			saved[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for _, out := range saved {
		if out == "" {
			res.Failed++
			continue
		}
		res.Downloaded = append(res.Downloaded, out)
	}
	s.logger.Info("compliance pull complete",
		zap.Int("downloaded", len(res.Downloaded)),
		zap.Int("failed", res.Failed))

	if len(res.Downloaded) == 0 {
		return res, fmt.Errorf("%w: %d links", ErrAllDownloadsFailed, len(links))
	}
	return res, nil
}

func (s *Scraper) downloadPDF(ctx context.Context, link, outDir string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		return "", fmt.Errorf("not a PDF: %s", name)
	}

	body, err := s.fetch(ctx, link)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer body.Close()

	out := filepath.Join(outDir, name)
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", out, err)
	}
	n, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		os.Remove(out)
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", out, err)
	}
	s.logger.Info("saved pdf", zap.String("file", out), zap.Int64("bytes", n))
	return out, nil
}
