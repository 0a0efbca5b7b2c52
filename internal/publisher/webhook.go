package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ryosukesatoh/proposal-feed/internal/fetcher"
)

type discordWebhookPayload struct {
	Embeds []*discordgo.MessageEmbed `json:"embeds"`
}

// WebhookPublisher publishes proposals to a Discord channel via webhook.
type WebhookPublisher struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

var _ Publisher = (*WebhookPublisher)(nil)

// NewWebhookPublisher creates a new WebhookPublisher.
func NewWebhookPublisher(webhookURL string, logger *slog.Logger) *WebhookPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookPublisher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Publish sends the proposal as a single embed. There is no retry; a failed
// post is reported to the caller.
func (d *WebhookPublisher) Publish(ctx context.Context, p fetcher.Proposal, summary string) error {
	if err := d.sendWebhook(ctx, BuildEmbed(p, summary)); err != nil {
		return fmt.Errorf("discord webhook: failed to send %s: %w", p.ID, err)
	}
	d.logger.Info("proposal posted", "id", p.ID, "via", "webhook")
	return nil
}

// sendWebhook posts embeds to the Discord webhook.
func (d *WebhookPublisher) sendWebhook(ctx context.Context, embeds ...*discordgo.MessageEmbed) error {
	payload := discordWebhookPayload{Embeds: embeds}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}
