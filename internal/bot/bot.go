// Package bot owns the Discord gateway session and turns its first Ready
// event into a one-shot readiness signal for the scheduler.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"

	"github.com/ryosukesatoh/proposal-feed/internal/retry"
)

// Intents the bot identifies with. Posting embeds needs no privileged intents.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

// Gateway close codes that no amount of reconnecting will fix.
var fatalCloseCodes = map[int]string{
	4004: "authentication failed",
	4010: "invalid shard",
	4011: "sharding required",
	4012: "invalid api version",
	4013: "invalid intents",
	4014: "disallowed intents",
}

type Bot struct {
	session   *discordgo.Session
	ready     chan struct{}
	readyOnce sync.Once
	logger    *slog.Logger
}

func New(token string, logger *slog.Logger) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("bot: discord token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("bot: failed to create session: %w", err)
	}
	session.Identify.Intents = Intents

	b := &Bot{
		session: session,
		ready:   make(chan struct{}),
		logger:  logger,
	}
	session.AddHandler(b.onReady)
	return b, nil
}

// Session exposes the underlying session for publishing.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Ready is closed after the first Ready event. Reconnects do not reopen it.
func (b *Bot) Ready() <-chan struct{} {
	return b.ready
}

// Connect opens the gateway session, retrying transient failures.
func (b *Bot) Connect(ctx context.Context, cfg retry.Config) error {
	err := retry.WithBackoff(ctx, cfg, b.logger, func(context.Context) error {
		return classifyOpenError(b.session.Open())
	})
	if err != nil {
		return fmt.Errorf("bot: failed to open gateway session: %w", err)
	}
	return nil
}

// classifyOpenError treats an already open session as success and marks
// gateway rejections of the credentials or intents as permanent.
func classifyOpenError(err error) error {
	if err == nil || errors.Is(err, discordgo.ErrWSAlreadyOpen) {
		return nil
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if reason, ok := fatalCloseCodes[closeErr.Code]; ok {
			return retry.Permanent(fmt.Errorf("%s: %w", reason, err))
		}
	}
	return err
}

func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	username := ""
	if r != nil && r.User != nil {
		username = r.User.Username
	}

	fired := false
	b.readyOnce.Do(func() {
		close(b.ready)
		fired = true
	})
	if fired {
		b.logger.Info("logged in", "user", username)
		return
	}
	b.logger.Debug("gateway ready again after reconnect", "user", username)
}
