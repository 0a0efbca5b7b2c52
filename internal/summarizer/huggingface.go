package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ryosukesatoh/proposal-feed/internal/config"
)

// HuggingFaceSummarizer calls a hosted summarization model on the Hugging
// Face inference API.
type HuggingFaceSummarizer struct {
	url           string
	token         string
	maxLength     int
	minLength     int
	maxInputChars int
	client        *http.Client
	logger        *slog.Logger
}

var _ Summarizer = (*HuggingFaceSummarizer)(nil)

func NewHuggingFaceSummarizer(cfg config.HuggingFaceConfig, timeout time.Duration, logger *slog.Logger) *HuggingFaceSummarizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HuggingFaceSummarizer{
		url:           cfg.URL,
		token:         cfg.Token,
		maxLength:     cfg.MaxLength,
		minLength:     cfg.MinLength,
		maxInputChars: cfg.MaxInputChars,
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Hugging Face inference request/response types

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxLength int  `json:"max_length"`
	MinLength int  `json:"min_length"`
	DoSample  bool `json:"do_sample"`
}

type hfSummary struct {
	SummaryText string `json:"summary_text"`
}

func (s *HuggingFaceSummarizer) Summarize(ctx context.Context, text string) string {
	if isBlank(text) {
		return EmptyInputSummary
	}

	body, err := s.callAPI(ctx, truncateRunes(strings.TrimSpace(text), s.maxInputChars))
	if err != nil {
		s.logger.Error("summarization request failed", "error", err)
		return APIErrorSummary
	}

	summary, err := parseHFResponse(body)
	if err != nil {
		s.logger.Error("summarization response unusable", "error", err)
		return ParseErrorSummary
	}

	return formatSummary(summary)
}

func (s *HuggingFaceSummarizer) callAPI(ctx context.Context, input string) ([]byte, error) {
	reqBody := hfRequest{
		Inputs: input,
		Parameters: hfParameters{
			MaxLength: s.maxLength,
			MinLength: s.minLength,
			DoSample:  false,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("huggingface: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("huggingface: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("huggingface: failed to read response: %w", err)
	}

	if int64(len(respBody)) > maxResponseBytes {
		return nil, fmt.Errorf("huggingface: response over %d bytes", maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("huggingface: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(truncateRunes(string(respBody), 256)))
	}

	return respBody, nil
}

// maxResponseBytes caps how much of an inference response is read.
var maxResponseBytes int64 = 4 << 20

// parseHFResponse expects `[{"summary_text": "..."}]`.
func parseHFResponse(body []byte) (string, error) {
	var summaries []hfSummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return "", fmt.Errorf("huggingface: failed to parse response: %w", err)
	}
	if len(summaries) == 0 {
		return "", fmt.Errorf("huggingface: empty response")
	}
	if isBlank(summaries[0].SummaryText) {
		return "", fmt.Errorf("huggingface: response has no summary_text")
	}
	return summaries[0].SummaryText, nil
}
