package channels

import (
	"context"
	"testing"

	"github.com/cratos-run/cratos/pkg/models"
)

func TestNewDiscordAdapterRequiresToken(t *testing.T) {
	if _, err := NewDiscordAdapter(DiscordConfig{}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestNewTelegramAdapterRequiresToken(t *testing.T) {
	if _, err := NewTelegramAdapter(TelegramConfig{}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestNewSlackAdapterRequiresTokens(t *testing.T) {
	if _, err := NewSlackAdapter(SlackConfig{BotToken: "xoxb-only"}); err == nil {
		t.Fatal("expected error for missing app token")
	}
	if _, err := NewSlackAdapter(SlackConfig{AppToken: "xapp-only"}); err == nil {
		t.Fatal("expected error for missing bot token")
	}
}

func TestNewSlackAdapterType(t *testing.T) {
	adapter, err := NewSlackAdapter(SlackConfig{BotToken: "xoxb-test", AppToken: "xapp-test"})
	if err != nil {
		t.Fatalf("NewSlackAdapter() error = %v", err)
	}
	if adapter.Type() != models.ChannelSlack {
		t.Errorf("Type() = %v, want %v", adapter.Type(), models.ChannelSlack)
	}
	if adapter.Status().Connected {
		t.Error("adapter should not report connected before Start")
	}
}

func TestNewWhatsAppAdapterRequiresSessionPath(t *testing.T) {
	if _, err := NewWhatsAppAdapter(WhatsAppConfig{}); err == nil {
		t.Fatal("expected error for missing session path")
	}
}

func TestNewMatrixAdapterRequiresCredentials(t *testing.T) {
	if _, err := NewMatrixAdapter(MatrixConfig{Homeserver: "https://example.org"}); err == nil {
		t.Fatal("expected error for missing user id and access token")
	}
}

func TestNewMatrixAdapterType(t *testing.T) {
	adapter, err := NewMatrixAdapter(MatrixConfig{
		Homeserver:  "https://example.org",
		UserID:      "@bot:example.org",
		AccessToken: "token",
	})
	if err != nil {
		t.Fatalf("NewMatrixAdapter() error = %v", err)
	}
	if adapter.Type() != models.ChannelMatrix {
		t.Errorf("Type() = %v, want %v", adapter.Type(), models.ChannelMatrix)
	}
}

func TestNewMattermostAdapterRequiresServerAndToken(t *testing.T) {
	if _, err := NewMattermostAdapter(MattermostConfig{Token: "token"}); err == nil {
		t.Fatal("expected error for missing server url")
	}
	if _, err := NewMattermostAdapter(MattermostConfig{ServerURL: "https://mm.example.org"}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestNewNostrAdapterRequiresPrivateKey(t *testing.T) {
	if _, err := NewNostrAdapter(NostrConfig{}); err == nil {
		t.Fatal("expected error for missing private key")
	}
}

func TestNewNostrAdapterDefaultsRelays(t *testing.T) {
	// 32-byte hex key (not a real secret)
	key := "0000000000000000000000000000000000000000000000000000000000000001"
	adapter, err := NewNostrAdapter(NostrConfig{PrivateKey: key})
	if err != nil {
		t.Fatalf("NewNostrAdapter() error = %v", err)
	}
	if adapter.Type() != models.ChannelNostr {
		t.Errorf("Type() = %v, want %v", adapter.Type(), models.ChannelNostr)
	}
	if len(adapter.relayURLs) == 0 {
		t.Error("expected default relays to be applied")
	}
}

func TestSendRequiresTargetMetadata(t *testing.T) {
	slack, err := NewSlackAdapter(SlackConfig{BotToken: "xoxb-test", AppToken: "xapp-test"})
	if err != nil {
		t.Fatalf("NewSlackAdapter() error = %v", err)
	}
	msg := &models.Message{Content: "hello", Metadata: map[string]any{}}
	if err := slack.Send(context.Background(), msg); err == nil {
		t.Error("slack Send should fail without channel_id metadata")
	}

	matrix, err := NewMatrixAdapter(MatrixConfig{
		Homeserver:  "https://example.org",
		UserID:      "@bot:example.org",
		AccessToken: "token",
	})
	if err != nil {
		t.Fatalf("NewMatrixAdapter() error = %v", err)
	}
	if err := matrix.Send(context.Background(), msg); err == nil {
		t.Error("matrix Send should fail without room_id metadata")
	}
}
