package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/cratos-run/cratos/pkg/models"
)

// TelegramConfig holds configuration for the Telegram adapter.
type TelegramConfig struct {
	// Token is the bot token issued by @BotFather (required).
	Token string

	Logger *slog.Logger
}

// TelegramAdapter implements Adapter and OutboundAdapter for Telegram
// using go-telegram/bot, running the client's own long-polling loop.
type TelegramAdapter struct {
	bot    *tgbot.Bot
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// NewTelegramAdapter validates cfg and constructs the Telegram bot client.
func NewTelegramAdapter(cfg TelegramConfig) (*TelegramAdapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b, err := tgbot.New(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to create bot: %w", err)
	}
	return &TelegramAdapter{
		bot:    b,
		logger: cfg.Logger.With("adapter", "telegram"),
	}, nil
}

func (a *TelegramAdapter) Type() models.ChannelType { return models.ChannelTelegram }

// Start begins the bot's long-polling update loop in the background.
func (a *TelegramAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()
	go a.bot.Start(ctx)
	return nil
}

func (a *TelegramAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	_, err := a.bot.Close(ctx)
	return err
}

// Send posts msg.Content to the chat identified by msg.Metadata["chat_id"].
func (a *TelegramAdapter) Send(ctx context.Context, msg *models.Message) error {
	chatID, err := telegramChatID(msg)
	if err != nil {
		return err
	}
	_, err = a.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   msg.Content,
	})
	return err
}

func telegramChatID(msg *models.Message) (int64, error) {
	raw, ok := msg.Metadata["chat_id"]
	if !ok {
		return 0, fmt.Errorf("telegram: outbound message missing chat_id metadata")
	}
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("telegram: invalid chat_id metadata: %w", err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("telegram: unsupported chat_id metadata type %T", raw)
	}
}

func (a *TelegramAdapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{Connected: a.connected}
}

func (a *TelegramAdapter) HealthCheck(ctx context.Context) HealthStatus {
	a.mu.RLock()
	connected := a.connected
	a.mu.RUnlock()
	return HealthStatus{Healthy: connected}
}
