package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ryosukesatoh/proposal-feed/internal/config"
)

// Origin records which adapter produced a proposal.
type Origin string

const (
	OriginHTML Origin = "html"
	OriginAPI  Origin = "api"
)

// Display defaults applied by the adapters when upstream omits a field.
const (
	DefaultTitle      = "Untitled proposal"
	DefaultFileNumber = "N/A"
	DefaultStatus     = "Unknown"
	DefaultSponsor    = "Unknown"
)

// Proposal is a legislative item normalized from either upstream form.
// ID is the dedup key and is never empty.
type Proposal struct {
	ID         string
	Title      string
	Body       string
	Link       string
	FileNumber string
	Status     string
	Sponsor    string
	Introduced time.Time
	Origin     Origin
}

// SummaryInput returns the text worth summarizing: the body when present,
// the title otherwise.
func (p Proposal) SummaryInput() string {
	if strings.TrimSpace(p.Body) != "" {
		return p.Body
	}
	return p.Title
}

// Fetcher pulls the recently introduced proposals from upstream. Fetch never
// fails: errors are logged and yield an empty result for the cycle.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) []Proposal
}

// ErrUnsupportedFetcherType is returned when an unsupported source type is specified
var ErrUnsupportedFetcherType = errors.New("unsupported fetcher type")

// ErrNoAPIKey means the API adapter cannot run this cycle.
var ErrNoAPIKey = errors.New("legistar api key not configured")

// maxResponseBytes caps how much of an upstream body is read.
var maxResponseBytes int64 = 4 << 20

var errResponseTooLarge = errors.New("response body too large")

func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > maxResponseBytes {
		return nil, fmt.Errorf("%w: over %d bytes", errResponseTooLarge, maxResponseBytes)
	}
	return body, nil
}

// New creates a fetcher based on the source configuration.
func New(cfg config.SourceConfig, logger *slog.Logger) (Fetcher, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Type {
	case "html":
		return NewHTMLFetcher(cfg.HTML, client, logger), nil
	case "api":
		return NewAPIFetcher(cfg.API, client, logger, nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFetcherType, cfg.Type)
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
