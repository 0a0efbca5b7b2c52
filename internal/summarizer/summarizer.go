package summarizer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ryosukesatoh/proposal-feed/internal/config"
)

// ErrUnsupportedSummarizerType is returned when an unsupported summarizer type is specified
var ErrUnsupportedSummarizerType = errors.New("unsupported summarizer type")

// New creates a summarizer based on the configuration.
func New(ctx context.Context, cfg config.SummarizerConfig, logger *slog.Logger) (Summarizer, error) {
	switch cfg.Type {
	case "huggingface":
		return NewHuggingFaceSummarizer(cfg.HuggingFace, cfg.Timeout, logger), nil
	case "gemini":
		client, err := NewGenaiClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return nil, err
		}
		return NewGeminiSummarizer(client, cfg.Gemini.Model, cfg.Timeout, cfg.Gemini.MaxInputChars, logger), nil
	default:
		return nil, ErrUnsupportedSummarizerType
	}
}
