package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/cratos-run/cratos/pkg/models"
)

// SlackConfig holds configuration for the Slack adapter.
type SlackConfig struct {
	// BotToken is the bot OAuth token (xoxb-...) (required).
	BotToken string

	// AppToken is the app-level token (xapp-...) for Socket Mode (required).
	AppToken string

	Logger *slog.Logger
}

// SlackAdapter implements Adapter and OutboundAdapter for Slack using
// slack-go in Socket Mode, so no public webhook endpoint is needed.
type SlackAdapter struct {
	client *slackapi.Client
	socket *socketmode.Client
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// NewSlackAdapter validates cfg and constructs the Slack Web API and
// Socket Mode clients.
func NewSlackAdapter(cfg SlackConfig) (*SlackAdapter, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: bot token and app token are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := slackapi.New(
		cfg.BotToken,
		slackapi.OptionAppLevelToken(cfg.AppToken),
	)
	socket := socketmode.New(client)
	return &SlackAdapter{
		client: client,
		socket: socket,
		logger: cfg.Logger.With("adapter", "slack"),
	}, nil
}

func (a *SlackAdapter) Type() models.ChannelType { return models.ChannelSlack }

// Start runs the Socket Mode event loop in the background.
func (a *SlackAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()
	go func() {
		if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("socket mode stopped", "error", err)
			a.mu.Lock()
			a.connected = false
			a.mu.Unlock()
		}
	}()
	return nil
}

func (a *SlackAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	return nil
}

// Send posts msg.Content to the Slack channel identified by
// msg.Metadata["channel_id"], threading on msg.Metadata["thread_ts"]
// when present.
func (a *SlackAdapter) Send(ctx context.Context, msg *models.Message) error {
	channelID, _ := msg.Metadata["channel_id"].(string)
	if channelID == "" {
		return fmt.Errorf("slack: outbound message missing channel_id metadata")
	}
	options := []slackapi.MsgOption{slackapi.MsgOptionText(msg.Content, false)}
	if threadTS, _ := msg.Metadata["thread_ts"].(string); threadTS != "" {
		options = append(options, slackapi.MsgOptionTS(threadTS))
	}
	_, _, err := a.client.PostMessageContext(ctx, channelID, options...)
	return err
}

func (a *SlackAdapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{Connected: a.connected}
}

func (a *SlackAdapter) HealthCheck(ctx context.Context) HealthStatus {
	if _, err := a.client.AuthTestContext(ctx); err != nil {
		return HealthStatus{Healthy: false, Message: err.Error()}
	}
	return HealthStatus{Healthy: true}
}
