package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const (
	colReportType    = "Report Type"
	colDatePublished = "Date Published"

	unknownReportType = "Unknown Report Type"
	unknownDate       = "Unknown Date"
)

var (
	errNoTable = errors.New("no table with class \"table\"")
	errNoRows  = errors.New("no data rows")
)

// Report is one audit report page flattened to CSV shape. Header and every
// row already include the Report Type and Date Published columns.
type Report struct {
	Header []string
	Rows   [][]string
}

// extractAuditLinks returns every href containing "audit", resolved
// against base, in document order and without duplicates.
func extractAuditLinks(r io.Reader, base *url.URL) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	var links []string
	seen := make(map[string]bool)
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		href, ok := attr(n, "href")
		if !ok || !strings.Contains(href, "audit") {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
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

// extractReport pulls the data table and the report title cells out of an
// audit report page.
func extractReport(r io.Reader) (*Report, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}

	table := find(doc, func(n *html.Node) bool {
		return isElement(n, "table") && hasClasses(n, "table")
	})
	if table == nil {
		return nil, errNoTable
	}

	reportType := unknownReportType
	if td := find(doc, func(n *html.Node) bool { return isElement(n, "td") && hasClasses(n, "c", "systemtitle3") }); td != nil {
		reportType = textOf(td)
	}
	datePublished := unknownDate
	if td := find(doc, func(n *html.Node) bool { return isElement(n, "td") && hasClasses(n, "r", "systemtitle4") }); td != nil {
		datePublished = textOf(td)
	}

	rep := &Report{}
	walk(table, func(n *html.Node) {
		if isElement(n, "th") {
			rep.Header = append(rep.Header, textOf(n))
		}
	})
	rep.Header = append(rep.Header, colReportType, colDatePublished)

	var trs []*html.Node
	walk(table, func(n *html.Node) {
		if isElement(n, "tr") {
			trs = append(trs, n)
		}
	})
	// The first row is the header row.
	for i, tr := range trs {
		if i == 0 {
			continue
		}
		var cells []string
		walk(tr, func(n *html.Node) {
			if isElement(n, "td") {
				cells = append(cells, textOf(n))
			}
		})
		if len(cells) == 0 {
			continue
		}
		row := append(cells, reportType, datePublished)
		if len(row) != len(rep.Header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i, len(row), len(rep.Header))
		}
		rep.Rows = append(rep.Rows, row)
	}
	if len(rep.Rows) == 0 {
		return nil, errNoRows
	}
	return rep, nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// hasClasses reports whether n carries every one of classes.
func hasClasses(n *html.Node, classes ...string) bool {
	val, ok := attr(n, "class")
	if !ok {
		return false
	}
	have := strings.Fields(val)
	for _, want := range classes {
		found := false
		for _, h := range have {
			if h == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// textOf concatenates descendant text and trims surrounding whitespace.
func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return strings.TrimSpace(b.String())
}
