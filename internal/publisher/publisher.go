package publisher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ryosukesatoh/proposal-feed/internal/config"
	"github.com/ryosukesatoh/proposal-feed/internal/fetcher"
)

// Publisher delivers one proposal and its summary to some output destination.
type Publisher interface {
	Publish(ctx context.Context, p fetcher.Proposal, summary string) error
}

var (
	// ErrNoChannel is reported by the bot publisher when no channel is configured.
	ErrNoChannel = errors.New("no target channel configured")

	// ErrUnsupportedPublisherType is returned when an unsupported publisher type is specified
	ErrUnsupportedPublisherType = errors.New("unsupported publisher type")
)

// New creates a publisher based on the configuration. The bot publisher
// sends through session, which may be nil for the other types.
func New(cfg config.PublisherConfig, session EmbedSender, logger *slog.Logger) (Publisher, error) {
	switch cfg.Type {
	case "bot":
		if session == nil {
			return nil, errors.New("bot publisher requires a discord session")
		}
		return NewBotPublisher(session, cfg.Discord.ChannelID, logger), nil
	case "webhook":
		return NewWebhookPublisher(cfg.Discord.WebhookURL, logger), nil
	case "stdout":
		return NewStdoutPublisher(), nil
	default:
		return nil, ErrUnsupportedPublisherType
	}
}
