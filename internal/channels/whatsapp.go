package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/cratos-run/cratos/pkg/models"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the whatsmeow session store
)

// WhatsAppConfig holds configuration for the WhatsApp adapter.
type WhatsAppConfig struct {
	// SessionPath is the SQLite file holding the whatsmeow device session.
	SessionPath string

	Logger *slog.Logger
}

// WhatsAppAdapter implements Adapter and OutboundAdapter for WhatsApp
// using whatsmeow. On first start (no stored device) it writes a login
// QR code PNG next to the session file for the operator to scan.
type WhatsAppAdapter struct {
	sessionPath string
	container   *sqlstore.Container
	logger      *slog.Logger

	mu        sync.RWMutex
	client    *whatsmeow.Client
	connected bool
}

// NewWhatsAppAdapter validates cfg and opens the session store.
func NewWhatsAppAdapter(cfg WhatsAppConfig) (*WhatsAppAdapter, error) {
	if cfg.SessionPath == "" {
		return nil, fmt.Errorf("whatsapp: session path is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SessionPath), 0o755); err != nil {
		return nil, fmt.Errorf("whatsapp: create session directory: %w", err)
	}
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	container, err := sqlstore.New(initCtx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", cfg.SessionPath), waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create session store: %w", err)
	}
	return &WhatsAppAdapter{
		sessionPath: cfg.SessionPath,
		container:   container,
		logger:      cfg.Logger.With("adapter", "whatsapp"),
	}, nil
}

func (a *WhatsAppAdapter) Type() models.ChannelType { return models.ChannelWhatsApp }

// Start connects to WhatsApp, emitting a login QR code if not yet paired.
func (a *WhatsAppAdapter) Start(ctx context.Context) error {
	device, err := a.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp: get device: %w", err)
	}
	client := whatsmeow.NewClient(device, waLog.Noop)

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("whatsapp: get QR channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
		go a.watchQR(ctx, qrChan)
	} else {
		if err := client.Connect(); err != nil {
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
		a.mu.Lock()
		a.connected = true
		a.mu.Unlock()
	}
	return nil
}

// watchQR renders each pairing code as a PNG next to the session file.
func (a *WhatsAppAdapter) watchQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	qrPath := a.sessionPath + ".login-qr.png"
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			switch evt.Event {
			case "code":
				if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 256, qrPath); err != nil {
					a.logger.Error("failed to write login QR code", "error", err)
					continue
				}
				a.logger.Info("scan QR code to log in", "path", qrPath)
			case "success":
				a.mu.Lock()
				a.connected = true
				a.mu.Unlock()
				os.Remove(qrPath)
				a.logger.Info("whatsapp login complete")
				return
			}
		}
	}
}

func (a *WhatsAppAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	client := a.client
	a.connected = false
	a.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
	return nil
}

// Send delivers msg.Content to the JID in msg.Metadata["jid"].
func (a *WhatsAppAdapter) Send(ctx context.Context, msg *models.Message) error {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("whatsapp: adapter not started")
	}
	rawJID, _ := msg.Metadata["jid"].(string)
	if rawJID == "" {
		return fmt.Errorf("whatsapp: outbound message missing jid metadata")
	}
	jid, err := types.ParseJID(rawJID)
	if err != nil {
		return fmt.Errorf("whatsapp: invalid jid %q: %w", rawJID, err)
	}
	_, err = client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(msg.Content),
	})
	return err
}

func (a *WhatsAppAdapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{Connected: a.connected}
}

func (a *WhatsAppAdapter) HealthCheck(ctx context.Context) HealthStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return HealthStatus{Healthy: a.connected}
}
