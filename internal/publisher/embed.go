package publisher

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/ryosukesatoh/proposal-feed/internal/fetcher"
)

// Discord embed limits.
const (
	maxTitleLen       = 256
	maxDescriptionLen = 4096
	maxFieldValueLen  = 1024
	maxFooterLen      = 2048
	maxEmbedTotal     = 6000
)

const (
	colorScraped = 0x2ECC71 // green
	colorAPI     = 0x3498DB // blue
)

const (
	footerScraped = "Sourced via Web Scraper | Accuracy may vary."
	footerAPI     = "Sourced via Legistar Web API"
)

// BuildEmbed renders a proposal and its summary as a Discord embed. The
// field set, footer and accent color depend on where the record came from.
func BuildEmbed(p fetcher.Proposal, summary string) *discordgo.MessageEmbed {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = fetcher.DefaultTitle
	}

	e := &discordgo.MessageEmbed{
		Title:       truncate("New Proposal: "+title, maxTitleLen),
		URL:         p.Link,
		Description: truncate(summary, maxDescriptionLen),
	}

	fileNumber := &discordgo.MessageEmbedField{
		Name:   "File Number",
		Value:  truncate(nonEmpty(p.FileNumber, fetcher.DefaultFileNumber), maxFieldValueLen),
		Inline: true,
	}

	switch p.Origin {
	case fetcher.OriginAPI:
		e.Color = colorAPI
		e.Footer = &discordgo.MessageEmbedFooter{Text: truncate(footerAPI, maxFooterLen)}
		e.Fields = []*discordgo.MessageEmbedField{fileNumber, {
			Name:   "Sponsor",
			Value:  truncate(nonEmpty(p.Sponsor, fetcher.DefaultSponsor), maxFieldValueLen),
			Inline: true,
		}}
	default:
		e.Color = colorScraped
		e.Footer = &discordgo.MessageEmbedFooter{Text: truncate(footerScraped, maxFooterLen)}
		e.Fields = []*discordgo.MessageEmbedField{fileNumber, {
			Name:   "Status",
			Value:  truncate(nonEmpty(p.Status, fetcher.DefaultStatus), maxFieldValueLen),
			Inline: true,
		}}
	}

	if !p.Introduced.IsZero() {
		e.Timestamp = p.Introduced.UTC().Format(time.RFC3339)
	}

	// Only the description gives way when the embed total is exceeded.
	if over := embedCharCount(e) - maxEmbedTotal; over > 0 {
		e.Description = truncate(e.Description, utf8.RuneCountInString(e.Description)-over)
	}

	return e
}

// truncate shortens s to max characters, preferring a sentence boundary.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}

	runes := []rune(s)
	cut := string(runes[:max-1])
	// Try to cut at a sentence boundary.
	if idx := strings.LastIndexAny(cut, ".!?"); idx > len(cut)/2 {
		return cut[:idx+1]
	}
	return cut + "…"
}

// embedCharCount returns the character count Discord checks against the
// per-message embed total.
func embedCharCount(e *discordgo.MessageEmbed) int {
	n := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
	for _, f := range e.Fields {
		n += utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
	}
	if e.Footer != nil {
		n += utf8.RuneCountInString(e.Footer.Text)
	}
	return n
}

func nonEmpty(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// plainText renders an embed for terminals and logs.
func plainText(e *discordgo.MessageEmbed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n%s\n\n", e.Title, e.URL, e.Description)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
	}
	if e.Footer != nil {
		fmt.Fprintf(&b, "-- %s\n", e.Footer.Text)
	}
	return b.String()
}
