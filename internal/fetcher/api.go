package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ryosukesatoh/proposal-feed/internal/config"
)

// Legistar serializes dates without a zone; they are treated as UTC.
var legistarDateLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// matter is the subset of a Legistar matter object the feed uses.
type matter struct {
	MatterID         int    `json:"MatterId"`
	MatterGUID       string `json:"MatterGuid"`
	MatterFile       string `json:"MatterFile"`
	MatterName       string `json:"MatterName"`
	MatterTitle      string `json:"MatterTitle"`
	MatterTypeName   string `json:"MatterTypeName"`
	MatterStatusName string `json:"MatterStatusName"`
	MatterRequester  string `json:"MatterRequester"`
	MatterIntroDate  string `json:"MatterIntroDate"`
}

// APIFetcher queries the Legistar REST API for recently introduced matters.
type APIFetcher struct {
	baseURL   string
	detailURL string
	apiKey    string
	keyHeader string
	lookback  time.Duration
	client    *http.Client
	logger    *slog.Logger
	clock     func() time.Time
}

var _ Fetcher = (*APIFetcher)(nil)

func NewAPIFetcher(cfg config.APIConfig, client *http.Client, logger *slog.Logger, clock func() time.Time) *APIFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &APIFetcher{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		detailURL: cfg.DetailURL,
		apiKey:    cfg.APIKey,
		keyHeader: cfg.KeyHeader,
		lookback:  cfg.Lookback,
		client:    client,
		logger:    logger,
		clock:     clock,
	}
}

func (f *APIFetcher) Name() string {
	return "api"
}

// Preflight reports ErrNoAPIKey when the adapter has no credentials.
func (f *APIFetcher) Preflight() error {
	if strings.TrimSpace(f.apiKey) == "" {
		return ErrNoAPIKey
	}
	return nil
}

// Fetch returns matters introduced within the lookback window, oldest first.
func (f *APIFetcher) Fetch(ctx context.Context) []Proposal {
	if err := f.Preflight(); err != nil {
		f.logger.Warn("cycle skipped", "reason", err)
		return nil
	}

	since := f.clock().UTC().Add(-f.lookback)
	f.logger.Info("querying legislation api", "since", since.Format(time.RFC3339))

	matters, err := f.fetchMatters(ctx, since)
	if err != nil {
		f.logger.Error("api fetch failed", "error", err)
		return nil
	}

	proposals := make([]Proposal, 0, len(matters))
	for _, m := range matters {
		p, ok := f.toProposal(m)
		if !ok {
			f.logger.Warn("dropping matter without identifier", "title", m.MatterTitle)
			continue
		}
		proposals = append(proposals, p)
	}

	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].Introduced.Before(proposals[j].Introduced)
	})

	f.logger.Debug("api fetch done", "matters", len(matters), "proposals", len(proposals))
	return proposals
}

func (f *APIFetcher) requestURL(since time.Time) string {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("MatterIntroDate ge datetime'%s'", since.Format("2006-01-02T15:04:05Z")))
	return fmt.Sprintf("%s/matters?%s", f.baseURL, query.Encode())
}

func (f *APIFetcher) fetchMatters(ctx context.Context, since time.Time) ([]matter, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.requestURL(since), nil)
	if err != nil {
		return nil, fmt.Errorf("api: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(f.keyHeader, f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api: unexpected status %d", resp.StatusCode)
	}

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api: failed to read response: %w", err)
	}

	var matters []matter
	if err := json.Unmarshal(body, &matters); err != nil {
		return nil, fmt.Errorf("api: failed to parse JSON: %w", err)
	}
	return matters, nil
}

// toProposal keys a matter on its file number, falling back to the numeric
// id and then the guid.
func (f *APIFetcher) toProposal(m matter) (Proposal, bool) {
	fileNumber := strings.TrimSpace(m.MatterFile)
	guid := strings.TrimSpace(m.MatterGUID)

	var id string
	switch {
	case fileNumber != "":
		id = fileNumber
	case m.MatterID != 0:
		id = "matter:" + strconv.Itoa(m.MatterID)
	case guid != "":
		id = "guid:" + guid
	default:
		return Proposal{}, false
	}

	title := orDefault(m.MatterName, orDefault(m.MatterTitle, DefaultTitle))

	status := orDefault(m.MatterStatusName, DefaultStatus)
	if t := strings.TrimSpace(m.MatterTypeName); t != "" && status != DefaultStatus {
		status = fmt.Sprintf("%s (%s)", status, t)
	}

	return Proposal{
		ID:         id,
		Title:      title,
		Body:       strings.TrimSpace(m.MatterTitle),
		Link:       f.detailLink(m.MatterID, guid),
		FileNumber: orDefault(fileNumber, DefaultFileNumber),
		Status:     status,
		Sponsor:    orDefault(m.MatterRequester, DefaultSponsor),
		Introduced: parseLegistarDate(m.MatterIntroDate),
		Origin:     OriginAPI,
	}, true
}

func (f *APIFetcher) detailLink(id int, guid string) string {
	if id == 0 {
		return f.detailURL
	}
	query := url.Values{}
	query.Set("ID", strconv.Itoa(id))
	if guid != "" {
		query.Set("GUID", guid)
	}
	return f.detailURL + "?" + query.Encode()
}

func parseLegistarDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range legistarDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
