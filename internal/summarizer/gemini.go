package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const geminiPrompt = `Summarize the following municipal legislative proposal for residents in two or three plain sentences. Do not add information that is not in the text.

%s`

// errEmptyCompletion is returned when the model answers with no text.
var errEmptyCompletion = errors.New("gemini: empty completion")

// TextGenerator is the slice of the Gemini SDK the summarizer needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

// GenaiClient adapts *genai.Client to TextGenerator.
type GenaiClient struct {
	client *genai.Client
}

var _ TextGenerator = (*GenaiClient)(nil)

func NewGenaiClient(ctx context.Context, apiKey string) (*GenaiClient, error) {
	return newGenaiClient(ctx, &genai.ClientConfig{APIKey: apiKey})
}

func newGenaiClient(ctx context.Context, cc *genai.ClientConfig) (*GenaiClient, error) {
	if strings.TrimSpace(cc.APIKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	cc.Backend = genai.BackendGeminiAPI
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GenaiClient{client: client}, nil
}

func (c *GenaiClient) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text, err := result.Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errEmptyCompletion, err)
	}
	return text, nil
}

// GeminiSummarizer summarizes with a Gemini model.
type GeminiSummarizer struct {
	generator     TextGenerator
	model         string
	timeout       time.Duration
	maxInputChars int
	logger        *slog.Logger
}

var _ Summarizer = (*GeminiSummarizer)(nil)

func NewGeminiSummarizer(generator TextGenerator, model string, timeout time.Duration, maxInputChars int, logger *slog.Logger) *GeminiSummarizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiSummarizer{
		generator:     generator,
		model:         model,
		timeout:       timeout,
		maxInputChars: maxInputChars,
		logger:        logger,
	}
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, text string) string {
	if isBlank(text) {
		return EmptyInputSummary
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(geminiPrompt, truncateRunes(strings.TrimSpace(text), s.maxInputChars))
	out, err := s.generator.GenerateText(ctx, s.model, prompt)
	switch {
	case errors.Is(err, errEmptyCompletion):
		s.logger.Error("summarization response unusable", "model", s.model, "error", err)
		return ParseErrorSummary
	case err != nil:
		s.logger.Error("summarization request failed", "model", s.model, "error", err)
		return APIErrorSummary
	case isBlank(out):
		s.logger.Error("summarization response unusable", "model", s.model, "error", errEmptyCompletion)
		return ParseErrorSummary
	}

	return formatSummary(out)
}
