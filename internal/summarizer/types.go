package summarizer

import (
	"context"
	"strings"
)

// Fixed display strings returned instead of errors.
const (
	EmptyInputSummary = "Proposal text was empty or unavailable for summary."
	APIErrorSummary   = "Could not generate a summary at this time due to an API error."
	ParseErrorSummary = "Could not parse the summary from the API response."
)

// Summarizer turns proposal text into a display-ready summary. Implementations
// never fail: every error is logged and mapped to one of the sentinels above.
type Summarizer interface {
	Summarize(ctx context.Context, text string) string
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// formatSummary quotes the model output for display in an embed.
func formatSummary(text string) string {
	text = strings.TrimSpace(text)
	return "AI-Generated Summary:\n> " + strings.ReplaceAll(text, "\n", "\n> ")
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
