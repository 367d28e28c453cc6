package notify

import (
	"fmt"

	"commodity-market-go/internal/config"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DiscordNotifier posts user notifications to a configured Discord channel.
// Sends run on a goroutine so the margin and pricing loops never wait on
// Discord; failures are logged and dropped.
type DiscordNotifier struct {
	session *discordgo.Session
	channel string
	logger  *zap.Logger
}

// NewDiscordNotifier opens a Discord session for the notification channel.
func NewDiscordNotifier(cfg *config.Discord, logger *zap.Logger) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open discord session: %w", err)
	}
	return &DiscordNotifier{
		session: session,
		channel: cfg.ChannelID,
		logger:  logger,
	}, nil
}

func (n *DiscordNotifier) Notify(user uuid.UUID, message string) {
	go func() {
		content := fmt.Sprintf("`%s` %s", user.String(), message)
		if _, err := n.session.ChannelMessageSend(n.channel, content); err != nil {
			n.logger.Warn("Failed to deliver discord notification",
				zap.String("user", user.String()),
				zap.Error(err),
			)
		}
	}()
}

// Close shuts down the Discord session.
func (n *DiscordNotifier) Close() error {
	return n.session.Close()
}
