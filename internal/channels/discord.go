package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/cratos-run/cratos/pkg/models"
)

// DiscordConfig holds configuration for the Discord adapter.
type DiscordConfig struct {
	// Token is the bot token from the Discord Developer Portal (required).
	Token string

	// Logger is an optional slog.Logger instance.
	Logger *slog.Logger
}

// DiscordAdapter implements Adapter and OutboundAdapter for Discord using
// bwmarrin/discordgo. It opens the gateway session so the bot shows up
// online, and sends outbound messages through the REST API; it does not
// implement the full inbound event surface (reactions, threads, slash
// commands) a production bot would need.
type DiscordAdapter struct {
	session *discordgo.Session
	logger  *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// NewDiscordAdapter validates cfg and constructs a discordgo session
// without opening the gateway connection yet (Start does that).
func NewDiscordAdapter(cfg DiscordConfig) (*DiscordAdapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: failed to create session: %w", err)
	}
	return &DiscordAdapter{
		session: session,
		logger:  cfg.Logger.With("adapter", "discord"),
	}, nil
}

func (a *DiscordAdapter) Type() models.ChannelType { return models.ChannelDiscord }

// Start opens the Discord gateway connection.
func (a *DiscordAdapter) Start(ctx context.Context) error {
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("discord: failed to open session: %w", err)
	}
	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()
	return nil
}

// Stop closes the Discord gateway connection.
func (a *DiscordAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	return a.session.Close()
}

// Send posts msg.Content to the Discord channel identified by
// msg.Metadata["channel_id"].
func (a *DiscordAdapter) Send(ctx context.Context, msg *models.Message) error {
	channelID, _ := msg.Metadata["channel_id"].(string)
	if channelID == "" {
		return fmt.Errorf("discord: outbound message missing channel_id metadata")
	}
	_, err := a.session.ChannelMessageSend(channelID, msg.Content)
	return err
}

func (a *DiscordAdapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{Connected: a.connected}
}

func (a *DiscordAdapter) HealthCheck(ctx context.Context) HealthStatus {
	a.mu.RLock()
	connected := a.connected
	a.mu.RUnlock()
	return HealthStatus{Healthy: connected}
}
