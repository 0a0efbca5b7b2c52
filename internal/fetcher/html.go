package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ryosukesatoh/proposal-feed/internal/config"
)

const minRowCells = 3

// errTableNotFound means the page no longer carries the legislation grid.
var errTableNotFound = errors.New("legislation table not found")

// HTMLFetcher scrapes the Legistar legislation listing page.
type HTMLFetcher struct {
	pageURL     string
	userAgent   string
	tableMarker string
	rowClasses  []string
	client      *http.Client
	logger      *slog.Logger
}

var _ Fetcher = (*HTMLFetcher)(nil)

func NewHTMLFetcher(cfg config.HTMLConfig, client *http.Client, logger *slog.Logger) *HTMLFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLFetcher{
		pageURL:     cfg.URL,
		userAgent:   cfg.UserAgent,
		tableMarker: cfg.TableMarker,
		rowClasses:  cfg.RowClasses,
		client:      client,
		logger:      logger,
	}
}

func (f *HTMLFetcher) Name() string {
	return "html"
}

// Preflight has nothing to check; the listing page needs no credentials.
func (f *HTMLFetcher) Preflight() error {
	return nil
}

// Fetch returns the listed proposals oldest first.
func (f *HTMLFetcher) Fetch(ctx context.Context) []Proposal {
	f.logger.Info("scraping legislation listing", "url", f.pageURL)

	doc, err := f.fetchDocument(ctx)
	if err != nil {
		f.logger.Error("scrape failed", "url", f.pageURL, "error", err)
		return nil
	}

	proposals, err := f.extract(doc)
	if err != nil {
		f.logger.Warn("scrape produced no proposals; the page structure may have changed",
			"url", f.pageURL, "marker", f.tableMarker, "error", err)
		return nil
	}

	f.logger.Debug("scrape done", "proposals", len(proposals))
	return proposals
}

func (f *HTMLFetcher) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("html: failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("html: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("html: unexpected status %d", resp.StatusCode)
	}

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("html: failed to read response: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("html: failed to parse document: %w", err)
	}
	return doc, nil
}

// extract walks the legislation grid and returns its rows in reverse
// document order. Rows without enough cells or without a detail link are
// skipped.
func (f *HTMLFetcher) extract(doc *goquery.Document) ([]Proposal, error) {
	table := doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, ok := s.Attr("id")
		return ok && strings.Contains(id, f.tableMarker)
	}).First()
	if table.Length() == 0 {
		return nil, errTableNotFound
	}

	base, err := url.Parse(f.pageURL)
	if err != nil {
		return nil, fmt.Errorf("html: invalid page url %q: %w", f.pageURL, err)
	}

	var collected []Proposal
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if !f.isDataRow(row) {
			return
		}
		p, ok := parseRow(row, base)
		if !ok {
			return
		}
		collected = append(collected, p)
	})

	proposals := make([]Proposal, 0, len(collected))
	for i := len(collected) - 1; i >= 0; i-- {
		proposals = append(proposals, collected[i])
	}
	return proposals, nil
}

func (f *HTMLFetcher) isDataRow(row *goquery.Selection) bool {
	for _, class := range f.rowClasses {
		if row.HasClass(class) {
			return true
		}
	}
	return false
}

func parseRow(row *goquery.Selection, base *url.URL) (Proposal, bool) {
	cells := row.ChildrenFiltered("td")
	if cells.Length() < minRowCells {
		return Proposal{}, false
	}

	link := cells.Eq(0).Find("a[href]").First()
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return Proposal{}, false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return Proposal{}, false
	}
	detailURL := base.ResolveReference(ref).String()

	status := DefaultStatus
	if cells.Length() > 4 {
		status = orDefault(cells.Eq(4).Text(), DefaultStatus)
	}

	return Proposal{
		ID:         detailURL,
		Title:      strings.TrimSpace(cells.Eq(2).Text()),
		Link:       detailURL,
		FileNumber: orDefault(link.Text(), DefaultFileNumber),
		Status:     status,
		Sponsor:    DefaultSponsor,
		Origin:     OriginHTML,
	}, true
}
