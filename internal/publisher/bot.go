package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ryosukesatoh/proposal-feed/internal/fetcher"
)

// EmbedSender is the part of *discordgo.Session the bot publisher uses.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ EmbedSender = (*discordgo.Session)(nil)

// BotPublisher posts embeds to one channel through the bot's gateway session.
type BotPublisher struct {
	session   EmbedSender
	channelID string
	logger    *slog.Logger
}

var _ Publisher = (*BotPublisher)(nil)

func NewBotPublisher(session EmbedSender, channelID string, logger *slog.Logger) *BotPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotPublisher{
		session:   session,
		channelID: strings.TrimSpace(channelID),
		logger:    logger,
	}
}

// Preflight reports ErrNoChannel when there is nowhere to post.
func (b *BotPublisher) Preflight() error {
	if b.channelID == "" {
		return ErrNoChannel
	}
	return nil
}

// Publish makes a single send attempt.
func (b *BotPublisher) Publish(ctx context.Context, p fetcher.Proposal, summary string) error {
	if err := b.Preflight(); err != nil {
		return err
	}

	msg, err := b.session.ChannelMessageSendEmbed(b.channelID, BuildEmbed(p, summary), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: failed to send embed for %s: %w", p.ID, err)
	}

	var messageID string
	if msg != nil {
		messageID = msg.ID
	}
	b.logger.Info("proposal posted", "id", p.ID, "channel", b.channelID, "message", messageID)
	return nil
}
