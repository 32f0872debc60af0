package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/cratos-run/cratos/pkg/models"
)

// MattermostConfig holds configuration for the Mattermost adapter.
type MattermostConfig struct {
	// ServerURL is the Mattermost server base URL (required).
	ServerURL string

	// Token is a personal access or bot token (required).
	Token string

	Logger *slog.Logger
}

// MattermostAdapter implements Adapter and OutboundAdapter for
// Mattermost using the official REST client.
type MattermostAdapter struct {
	client *model.Client4
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// NewMattermostAdapter validates cfg and constructs the REST client.
func NewMattermostAdapter(cfg MattermostConfig) (*MattermostAdapter, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("mattermost: server url is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("mattermost: token is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := model.NewAPIv4Client(cfg.ServerURL)
	client.SetToken(cfg.Token)
	return &MattermostAdapter{
		client: client,
		logger: cfg.Logger.With("adapter", "mattermost"),
	}, nil
}

func (a *MattermostAdapter) Type() models.ChannelType { return models.ChannelMattermost }

// Start verifies the token against the server.
func (a *MattermostAdapter) Start(ctx context.Context) error {
	if _, _, err := a.client.GetMe(ctx, ""); err != nil {
		return fmt.Errorf("mattermost: auth check failed: %w", err)
	}
	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()
	return nil
}

func (a *MattermostAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	return nil
}

// Send creates a post in the channel from msg.Metadata["channel_id"],
// threading on msg.Metadata["root_id"] when present.
func (a *MattermostAdapter) Send(ctx context.Context, msg *models.Message) error {
	channelID, _ := msg.Metadata["channel_id"].(string)
	if channelID == "" {
		return fmt.Errorf("mattermost: outbound message missing channel_id metadata")
	}
	post := &model.Post{
		ChannelId: channelID,
		Message:   msg.Content,
	}
	if rootID, _ := msg.Metadata["root_id"].(string); rootID != "" {
		post.RootId = rootID
	}
	_, _, err := a.client.CreatePost(ctx, post)
	return err
}

func (a *MattermostAdapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{Connected: a.connected}
}

func (a *MattermostAdapter) HealthCheck(ctx context.Context) HealthStatus {
	if _, _, err := a.client.GetPing(ctx); err != nil {
		return HealthStatus{Healthy: false, Message: err.Error()}
	}
	return HealthStatus{Healthy: true}
}
