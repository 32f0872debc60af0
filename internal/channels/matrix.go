package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/cratos-run/cratos/pkg/models"
)

// MatrixConfig holds configuration for the Matrix adapter.
type MatrixConfig struct {
	// Homeserver is the base URL of the homeserver (required).
	Homeserver string

	// UserID is the full Matrix user id, e.g. @bot:example.org (required).
	UserID string

	// AccessToken authenticates the client (required).
	AccessToken string

	// DeviceID is optional; reusing one keeps encryption state stable.
	DeviceID string

	Logger *slog.Logger
}

// MatrixAdapter implements Adapter and OutboundAdapter for Matrix
// using mautrix, running the client's sync loop.
type MatrixAdapter struct {
	client *mautrix.Client
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// NewMatrixAdapter validates cfg and constructs the mautrix client.
func NewMatrixAdapter(cfg MatrixConfig) (*MatrixAdapter, error) {
	if cfg.Homeserver == "" || cfg.UserID == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("matrix: homeserver, user_id, and access_token are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	if cfg.DeviceID != "" {
		client.DeviceID = id.DeviceID(cfg.DeviceID)
	}
	return &MatrixAdapter{
		client: client,
		logger: cfg.Logger.With("adapter", "matrix"),
	}, nil
}

func (a *MatrixAdapter) Type() models.ChannelType { return models.ChannelMatrix }

// Start runs the sync loop in the background.
func (a *MatrixAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()
	go func() {
		if err := a.client.SyncWithContext(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("sync loop stopped", "error", err)
			a.mu.Lock()
			a.connected = false
			a.mu.Unlock()
		}
	}()
	return nil
}

func (a *MatrixAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	a.client.StopSync()
	return nil
}

// Send posts msg.Content to the room in msg.Metadata["room_id"].
func (a *MatrixAdapter) Send(ctx context.Context, msg *models.Message) error {
	roomID, _ := msg.Metadata["room_id"].(string)
	if roomID == "" {
		return fmt.Errorf("matrix: outbound message missing room_id metadata")
	}
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    msg.Content,
	}
	_, err := a.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
	return err
}

func (a *MatrixAdapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{Connected: a.connected}
}

func (a *MatrixAdapter) HealthCheck(ctx context.Context) HealthStatus {
	if _, err := a.client.Whoami(ctx); err != nil {
		return HealthStatus{Healthy: false, Message: err.Error()}
	}
	return HealthStatus{Healthy: true}
}
