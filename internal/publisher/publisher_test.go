package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/ryosukesatoh/proposal-feed/internal/config"
	"github.com/ryosukesatoh/proposal-feed/internal/fetcher"
	"github.com/ryosukesatoh/proposal-feed/internal/logging"
)

func scrapedProposal() fetcher.Proposal {
	return fetcher.Proposal{
		ID:         "https://milwaukee.legistar.com/LegislationDetail.aspx?ID=1&GUID=AAA",
		Title:      "Resolution relating to street lighting",
		Link:       "https://milwaukee.legistar.com/LegislationDetail.aspx?ID=1&GUID=AAA",
		FileNumber: "250001",
		Status:     "In Committee",
		Sponsor:    fetcher.DefaultSponsor,
		Origin:     fetcher.OriginHTML,
	}
}

func apiProposal() fetcher.Proposal {
	return fetcher.Proposal{
		ID:         "260102",
		Title:      "Parking ordinance",
		Body:       "An ordinance relating to parking enforcement.",
		Link:       "https://milwaukee.legistar.com/LegislationDetail.aspx?GUID=GUID-B&ID=7002",
		FileNumber: "260102",
		Status:     "In Committee (Ordinance)",
		Sponsor:    "Ald. Example",
		Introduced: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
		Origin:     fetcher.OriginAPI,
	}
}

const sampleSummary = "AI-Generated Summary:\n> The city will repair street lights."

func TestBuildEmbedScraped(t *testing.T) {
	e := BuildEmbed(scrapedProposal(), sampleSummary)

	if e.Title != "New Proposal: Resolution relating to street lighting" {
		t.Errorf("Unexpected title %q", e.Title)
	}
	if e.URL != scrapedProposal().Link {
		t.Errorf("Expected embed url to be the proposal link, got %q", e.URL)
	}
	if e.Description != sampleSummary {
		t.Errorf("Expected summary as description, got %q", e.Description)
	}
	if e.Color != 0x2ECC71 {
		t.Errorf("Expected green for scraped proposals, got %#x", e.Color)
	}
	if e.Footer == nil || e.Footer.Text != "Sourced via Web Scraper | Accuracy may vary." {
		t.Errorf("Unexpected footer %+v", e.Footer)
	}
	if e.Timestamp != "" {
		t.Errorf("Expected no timestamp without an introduction date, got %q", e.Timestamp)
	}

	if len(e.Fields) != 2 {
		t.Fatalf("Expected 2 fields, got %d", len(e.Fields))
	}
	if e.Fields[0].Name != "File Number" || e.Fields[0].Value != "250001" {
		t.Errorf("Unexpected first field %+v", e.Fields[0])
	}
	if e.Fields[1].Name != "Status" || e.Fields[1].Value != "In Committee" {
		t.Errorf("Unexpected second field %+v", e.Fields[1])
	}
	for _, f := range e.Fields {
		if !f.Inline {
			t.Errorf("Expected field %q to be inline", f.Name)
		}
	}
}

func TestBuildEmbedAPI(t *testing.T) {
	e := BuildEmbed(apiProposal(), sampleSummary)

	if e.Color != 0x3498DB {
		t.Errorf("Expected blue for api proposals, got %#x", e.Color)
	}
	if e.Footer == nil || !strings.Contains(e.Footer.Text, "Legistar") {
		t.Errorf("Expected footer attributing the api, got %+v", e.Footer)
	}
	if e.Timestamp != "2026-10-15T00:00:00Z" {
		t.Errorf("Expected introduction date as timestamp, got %q", e.Timestamp)
	}
	if len(e.Fields) != 2 || e.Fields[1].Name != "Sponsor" || e.Fields[1].Value != "Ald. Example" {
		t.Errorf("Expected sponsor field, got %+v", e.Fields)
	}
}

func TestBuildEmbedDefaults(t *testing.T) {
	e := BuildEmbed(fetcher.Proposal{ID: "x", Origin: fetcher.OriginHTML}, "")

	if e.Title != "New Proposal: "+fetcher.DefaultTitle {
		t.Errorf("Expected default title, got %q", e.Title)
	}
	if e.Fields[0].Value != fetcher.DefaultFileNumber {
		t.Errorf("Expected default file number, got %q", e.Fields[0].Value)
	}
	if e.Fields[1].Value != fetcher.DefaultStatus {
		t.Errorf("Expected default status, got %q", e.Fields[1].Value)
	}
}

func TestBuildEmbedRespectsLimits(t *testing.T) {
	p := scrapedProposal()
	p.Title = strings.Repeat("t", 300)
	p.FileNumber = strings.Repeat("f", 2000)
	p.Status = strings.Repeat("s", 2000)

	e := BuildEmbed(p, strings.Repeat("x", 5000))

	if n := utf8.RuneCountInString(e.Title); n > 256 {
		t.Errorf("Expected title <= 256 chars, got %d", n)
	}
	if n := utf8.RuneCountInString(e.Description); n > 4096 {
		t.Errorf("Expected description <= 4096 chars, got %d", n)
	}
	for _, f := range e.Fields {
		if n := utf8.RuneCountInString(f.Value); n > 1024 {
			t.Errorf("Expected field %q <= 1024 chars, got %d", f.Name, n)
		}
	}
	if n := embedCharCount(e); n > 6000 {
		t.Errorf("Expected embed total <= 6000 chars, got %d", n)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		check func(string) bool
		desc  string
	}{
		{
			name:  "short string unchanged",
			input: "hello",
			max:   10,
			check: func(s string) bool { return s == "hello" },
			desc:  "expected 'hello'",
		},
		{
			name:  "exact length unchanged",
			input: "hello",
			max:   5,
			check: func(s string) bool { return s == "hello" },
			desc:  "expected 'hello'",
		},
		{
			name:  "long string truncated with ellipsis",
			input: "This is a very long string that should be truncated.",
			max:   20,
			check: func(s string) bool { return utf8.RuneCountInString(s) == 20 && strings.HasSuffix(s, "…") },
			desc:  "expected 20 chars ending with ellipsis",
		},
		{
			name:  "truncation prefers sentence boundary",
			input: "A long enough first sentence. The rest is extra padding text here.",
			max:   40,
			check: func(s string) bool { return s == "A long enough first sentence." },
			desc:  "expected truncation at sentence boundary",
		},
		{
			name:  "multibyte text cut on rune boundary",
			input: strings.Repeat("条例", 20),
			max:   10,
			check: func(s string) bool { return utf8.ValidString(s) && utf8.RuneCountInString(s) == 10 },
			desc:  "expected 10 valid runes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncate(tt.input, tt.max)
			if !tt.check(result) {
				t.Errorf("%s, got %q", tt.desc, result)
			}
		})
	}
}

func TestEmbedCharCount(t *testing.T) {
	e := &discordgo.MessageEmbed{
		Title:       "Title",       // 5
		Description: "Description", // 11
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Field", Value: "Value"}, // 5 + 5 = 10
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Footer"}, // 6
	}

	count := embedCharCount(e)
	expected := 5 + 11 + 5 + 5 + 6
	if count != expected {
		t.Errorf("Expected char count %d, got %d", expected, count)
	}
}

type fakeSender struct {
	channelID string
	embeds    []*discordgo.MessageEmbed
	err       error
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.channelID = channelID
	f.embeds = append(f.embeds, embed)
	return &discordgo.Message{ID: "msg-1", ChannelID: channelID}, nil
}

func TestBotPublish(t *testing.T) {
	sender := &fakeSender{}
	pub := NewBotPublisher(sender, " 123456789 ", logging.Discard())

	if err := pub.Preflight(); err != nil {
		t.Fatalf("Expected preflight to pass, got %v", err)
	}
	if err := pub.Publish(context.Background(), apiProposal(), sampleSummary); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if sender.channelID != "123456789" {
		t.Errorf("Expected channel 123456789, got %q", sender.channelID)
	}
	if len(sender.embeds) != 1 || sender.embeds[0].Title != "New Proposal: Parking ordinance" {
		t.Errorf("Unexpected embeds sent: %+v", sender.embeds)
	}
}

func TestBotPublishWithoutChannel(t *testing.T) {
	sender := &fakeSender{}
	pub := NewBotPublisher(sender, "", logging.Discard())

	if !errors.Is(pub.Preflight(), ErrNoChannel) {
		t.Errorf("Expected ErrNoChannel from preflight, got %v", pub.Preflight())
	}
	if err := pub.Publish(context.Background(), apiProposal(), sampleSummary); !errors.Is(err, ErrNoChannel) {
		t.Errorf("Expected ErrNoChannel from publish, got %v", err)
	}
	if len(sender.embeds) != 0 {
		t.Errorf("Expected nothing sent, got %d embeds", len(sender.embeds))
	}
}

func TestBotPublishSendError(t *testing.T) {
	sendErr := errors.New("HTTP 403 Forbidden")
	pub := NewBotPublisher(&fakeSender{err: sendErr}, "123", logging.Discard())

	err := pub.Publish(context.Background(), apiProposal(), sampleSummary)
	if !errors.Is(err, sendErr) {
		t.Errorf("Expected wrapped send error, got %v", err)
	}
}

func TestWebhookPublish(t *testing.T) {
	var calls int
	var payload discordWebhookPayload

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %q", r.Header.Get("Content-Type"))
		}

		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("Failed to parse webhook payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	pub := NewWebhookPublisher(ts.URL, logging.Discard())
	pub.client = ts.Client()

	if err := pub.Publish(context.Background(), scrapedProposal(), sampleSummary); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 webhook call, got %d", calls)
	}
	if len(payload.Embeds) != 1 {
		t.Fatalf("Expected 1 embed, got %d", len(payload.Embeds))
	}
	if payload.Embeds[0].Color != 0x2ECC71 {
		t.Errorf("Expected green embed, got %#x", payload.Embeds[0].Color)
	}
	if payload.Embeds[0].Fields[1].Name != "Status" {
		t.Errorf("Expected status field, got %+v", payload.Embeds[0].Fields)
	}
}

func TestWebhookPublishErrorIsNotRetried(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	pub := NewWebhookPublisher(ts.URL, logging.Discard())
	pub.client = ts.Client()

	err := pub.Publish(context.Background(), scrapedProposal(), sampleSummary)
	if err == nil {
		t.Fatal("Expected error for webhook failure")
	}
	if !strings.Contains(err.Error(), "unexpected status 400") {
		t.Errorf("Expected 'unexpected status 400' error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
}

func TestStdoutPublish(t *testing.T) {
	var buf bytes.Buffer
	pub := &StdoutPublisher{out: &buf}

	if err := pub.Publish(context.Background(), apiProposal(), sampleSummary); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"New Proposal: Parking ordinance",
		"GUID=GUID-B",
		"The city will repair street lights.",
		"File Number: 260102",
		"Sponsor: Ald. Example",
		"Legistar",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.PublisherConfig
		session EmbedSender
		want    string
		wantErr bool
	}{
		{"bot", config.PublisherConfig{Type: "bot", Discord: config.DiscordConfig{ChannelID: "1"}}, &fakeSender{}, "*publisher.BotPublisher", false},
		{"bot without session", config.PublisherConfig{Type: "bot"}, nil, "", true},
		{"webhook", config.PublisherConfig{Type: "webhook", Discord: config.DiscordConfig{WebhookURL: "http://x"}}, nil, "*publisher.WebhookPublisher", false},
		{"stdout", config.PublisherConfig{Type: "stdout"}, nil, "*publisher.StdoutPublisher", false},
		{"unknown", config.PublisherConfig{Type: "email"}, nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, err := New(tt.cfg, tt.session, logging.Discard())
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %T", pub)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := fmt.Sprintf("%T", pub); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
